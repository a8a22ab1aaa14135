package physics

import (
	"math"
	"testing"

	"github.com/pthm-cable/clusters/geometry"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFusionVelocities(t *testing.T) {
	tests := []struct {
		name       string
		a, b       Body
		wantVel    geometry.Vec
		wantAngVel float64
	}{
		{
			name:    "head-on along the center line",
			a:       Body{Mass: 1, Center: geometry.Vec{X: 0}, Vel: geometry.Vec{X: 1}},
			b:       Body{Mass: 1, Center: geometry.Vec{X: 1}, Vel: geometry.Vec{X: -1}},
			wantVel: geometry.Vec{},
		},
		{
			name:    "mass weighted",
			a:       Body{Mass: 3, Center: geometry.Vec{X: 0}, Vel: geometry.Vec{X: 1}},
			b:       Body{Mass: 1, Center: geometry.Vec{X: 1}},
			wantVel: geometry.Vec{X: 0.75},
		},
		{
			name:       "offset produces spin",
			a:          Body{Mass: 1, Center: geometry.Vec{}, Vel: geometry.Vec{X: 1}},
			b:          Body{Mass: 1, Center: geometry.Vec{Y: 1}, Vel: geometry.Vec{X: -1}},
			wantVel:    geometry.Vec{},
			wantAngVel: 2 / radPerDeg, // L = 1, I = 0.5
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vel, angVel := FusionVelocities(tt.a, tt.b)
			if !approx(vel.X, tt.wantVel.X, 1e-9) || !approx(vel.Y, tt.wantVel.Y, 1e-9) {
				t.Errorf("vel = %v, want %v", vel, tt.wantVel)
			}
			if !approx(angVel, tt.wantAngVel, 1e-9) {
				t.Errorf("angular vel = %v, want %v", angVel, tt.wantAngVel)
			}
		})
	}
}

func TestFusionConservesAngularMomentum(t *testing.T) {
	a := NewBody([]geometry.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}, geometry.Vec{X: 0.2, Y: 0.1}, 3)
	b := NewBody([]geometry.Vec{{X: 1, Y: 1}, {X: 1, Y: 2}}, geometry.Vec{X: -0.3}, -5)

	vel, angVel := FusionVelocities(a, b)

	fused := NewBody([]geometry.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}, {X: 1, Y: 2}}, vel, angVel)
	momentum := func(bodies ...Body) float64 {
		var l float64
		for _, body := range bodies {
			r := geometry.Vec{X: body.Center.X - fused.Center.X, Y: body.Center.Y - fused.Center.Y}
			l += body.AngularMomentum() + body.Mass*(r.X*body.Vel.Y-r.Y*body.Vel.X)
		}
		return l
	}
	if before, after := momentum(a, b), momentum(fused); !approx(before, after, 1e-9) {
		t.Errorf("angular momentum %v before, %v after fusion", before, after)
	}
}

func TestPartVelocities(t *testing.T) {
	center := geometry.Vec{}
	vel := geometry.Vec{X: 0.1}
	w := 10.0

	t.Run("whole body keeps its motion", func(t *testing.T) {
		v, angVel := PartVelocities([]geometry.Vec{{X: -1}, {X: 1}}, center, vel, w)
		if !approx(v.X, 0.1, 1e-12) || !approx(v.Y, 0, 1e-12) {
			t.Errorf("vel = %v, want (0.1, 0)", v)
		}
		if !approx(angVel, w, 1e-9) {
			t.Errorf("angular vel = %v, want %v", angVel, w)
		}
	})

	t.Run("single cell takes its tangential velocity", func(t *testing.T) {
		v, angVel := PartVelocities([]geometry.Vec{{X: 1}}, center, vel, w)
		if !approx(v.X, 0.1, 1e-12) || !approx(v.Y, w*radPerDeg, 1e-12) {
			t.Errorf("vel = %v, want (0.1, %v)", v, w*radPerDeg)
		}
		if angVel != 0 {
			t.Errorf("angular vel = %v, want 0", angVel)
		}
	})
}

func TestCollideSwapsEqualMasses(t *testing.T) {
	a := Body{Mass: 1, Vel: geometry.Vec{X: 0.1}}
	b := Body{Mass: 1, Center: geometry.Vec{X: 1}, Vel: geometry.Vec{X: -0.1}}

	if !Collide(&a, &b, geometry.Vec{}, geometry.Vec{}, geometry.Vec{X: 1}) {
		t.Fatal("approaching bodies should collide")
	}
	if !approx(a.Vel.X, -0.1, 1e-12) || !approx(b.Vel.X, 0.1, 1e-12) {
		t.Errorf("velocities after collision = %v, %v, want swapped", a.Vel, b.Vel)
	}
}

func TestCollideConservesEnergy(t *testing.T) {
	a := NewBody([]geometry.Vec{{X: 0, Y: -1}, {X: 0, Y: 0}, {X: 0, Y: 1}}, geometry.Vec{X: 0.3}, 2)
	b := NewBody([]geometry.Vec{{X: 1, Y: 1}, {X: 2, Y: 1}}, geometry.Vec{X: -0.1, Y: 0.05}, -1)
	before := a.KineticEnergy() + b.KineticEnergy()
	momentumX := a.Mass*a.Vel.X + b.Mass*b.Vel.X

	ra := geometry.Vec{X: 0, Y: 1}
	rb := geometry.Vec{X: -0.5, Y: 0}
	if !Collide(&a, &b, ra, rb, geometry.Vec{X: 1}) {
		t.Fatal("expected collision")
	}

	after := a.KineticEnergy() + b.KineticEnergy()
	if !approx(before, after, 1e-12) {
		t.Errorf("kinetic energy %v before, %v after", before, after)
	}
	if got := a.Mass*a.Vel.X + b.Mass*b.Vel.X; !approx(momentumX, got, 1e-12) {
		t.Errorf("momentum %v before, %v after", momentumX, got)
	}
	if ClosingSpeed(a, b, ra, rb, geometry.Vec{X: 1}) > 0 {
		t.Error("bodies still approaching after collision")
	}
}

func TestCollideIgnoresSeparatingBodies(t *testing.T) {
	a := Body{Mass: 1, Vel: geometry.Vec{X: -0.1}}
	b := Body{Mass: 1, Vel: geometry.Vec{X: 0.1}}
	if Collide(&a, &b, geometry.Vec{}, geometry.Vec{}, geometry.Vec{X: 1}) {
		t.Error("separating bodies should not collide")
	}
	if a.Vel.X != -0.1 || b.Vel.X != 0.1 {
		t.Error("velocities changed")
	}
}

func TestCentripetalAcceleration(t *testing.T) {
	got := CentripetalAcceleration(180/math.Pi, geometry.Vec{X: 3, Y: 4}) // 1 rad per step
	if !approx(got, 5, 1e-12) {
		t.Errorf("acceleration = %v, want 5", got)
	}
}
