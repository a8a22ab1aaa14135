// Package physics contains the closed-form rigid-body math of clusters.
// Every cell has unit mass; angles are in degrees and angular velocities in degrees per step.
package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/geometry"
)

const radPerDeg = math.Pi / 180

// Epsilon below which an angular mass is treated as zero (single-cell clusters).
const Epsilon = 1e-9

// Body is the rigid-body state of a cluster.
type Body struct {
	Mass        float64 // number of cells
	AngularMass float64 // sum of squared cell distances to Center
	Center      geometry.Vec
	Vel         geometry.Vec
	AngularVel  float64
}

// NewBody computes the body of cells at the given positions.
// The center is the centroid of the positions.
func NewBody(positions []geometry.Vec, vel geometry.Vec, angularVel float64) Body {
	b := Body{Mass: float64(len(positions)), Vel: vel, AngularVel: angularVel}
	if len(positions) == 0 {
		return b
	}
	b.Center = Centroid(positions)
	b.AngularMass = AngularMass(positions, b.Center)
	return b
}

// Centroid returns the mean of positions.
func Centroid(positions []geometry.Vec) geometry.Vec {
	var sum geometry.Vec
	for _, p := range positions {
		sum = r2.Add(sum, p)
	}
	return r2.Scale(1/float64(len(positions)), sum)
}

// AngularMass returns the moment of inertia of unit masses at positions about center.
func AngularMass(positions []geometry.Vec, center geometry.Vec) float64 {
	var m float64
	for _, p := range positions {
		m += r2.Norm2(r2.Sub(p, center))
	}
	return m
}

// LinearKineticEnergy returns 1/2 m v².
func (b Body) LinearKineticEnergy() float64 {
	return 0.5 * b.Mass * r2.Norm2(b.Vel)
}

// RotationalKineticEnergy returns 1/2 I ω² with ω in radians per step.
func (b Body) RotationalKineticEnergy() float64 {
	w := b.AngularVel * radPerDeg
	return 0.5 * b.AngularMass * w * w
}

// KineticEnergy returns the sum of linear and rotational kinetic energy.
func (b Body) KineticEnergy() float64 {
	return b.LinearKineticEnergy() + b.RotationalKineticEnergy()
}

// AngularMomentum returns I ω about the body's own center, ω in radians.
func (b Body) AngularMomentum() float64 {
	return b.AngularMass * b.AngularVel * radPerDeg
}

// CellVelocity returns the velocity of a point at offset rel from the center: v + ω × rel.
func CellVelocity(vel geometry.Vec, angularVel float64, rel geometry.Vec) geometry.Vec {
	w := angularVel * radPerDeg
	return r2.Add(vel, geometry.Vec{X: -w * rel.Y, Y: w * rel.X})
}

// CentripetalAcceleration returns ω²|rel| for a cell at offset rel from the center.
func CentripetalAcceleration(angularVel float64, rel geometry.Vec) float64 {
	w := angularVel * radPerDeg
	return w * w * r2.Norm(rel)
}

// FusionVelocities returns the linear and angular velocity of the cluster formed by
// fusing a and b. Linear momentum and angular momentum about the new centroid are
// conserved; b.Center must be expressed in the same (unwrapped) frame as a.Center.
func FusionVelocities(a, b Body) (geometry.Vec, float64) {
	mass := a.Mass + b.Mass
	if mass == 0 {
		return geometry.Vec{}, 0
	}
	center := r2.Scale(1/mass, r2.Add(r2.Scale(a.Mass, a.Center), r2.Scale(b.Mass, b.Center)))
	vel := r2.Scale(1/mass, r2.Add(r2.Scale(a.Mass, a.Vel), r2.Scale(b.Mass, b.Vel)))

	ra, rb := r2.Sub(a.Center, center), r2.Sub(b.Center, center)
	momentum := a.AngularMomentum() + a.Mass*r2.Cross(ra, r2.Sub(a.Vel, vel)) +
		b.AngularMomentum() + b.Mass*r2.Cross(rb, r2.Sub(b.Vel, vel))
	inertia := a.AngularMass + a.Mass*r2.Norm2(ra) + b.AngularMass + b.Mass*r2.Norm2(rb)
	if inertia < Epsilon {
		return vel, 0
	}
	return vel, momentum / inertia / radPerDeg
}

// PartVelocities returns the rigid-body velocities of a fragment whose cells sit at
// positions (same frame as center) in a body moving with vel and angularVel about center.
// Linear velocity is the mean of the cell velocities, angular velocity is L/I about the
// fragment centroid.
func PartVelocities(positions []geometry.Vec, center, vel geometry.Vec, angularVel float64) (geometry.Vec, float64) {
	if len(positions) == 0 {
		return vel, 0
	}
	velocities := make([]geometry.Vec, len(positions))
	var sum geometry.Vec
	for i, p := range positions {
		velocities[i] = CellVelocity(vel, angularVel, r2.Sub(p, center))
		sum = r2.Add(sum, velocities[i])
	}
	partVel := r2.Scale(1/float64(len(positions)), sum)
	partCenter := Centroid(positions)

	var momentum, inertia float64
	for i, p := range positions {
		r := r2.Sub(p, partCenter)
		momentum += r2.Cross(r, r2.Sub(velocities[i], partVel))
		inertia += r2.Norm2(r)
	}
	if inertia < Epsilon {
		return partVel, 0
	}
	return partVel, momentum / inertia / radPerDeg
}

// Collide applies an elastic impulse (restitution 1) between a and b at contact points
// with offsets ra and rb from their centers, along the unit normal n pointing from a to b.
// It returns false without changing anything if the bodies are separating.
func Collide(a, b *Body, ra, rb, n geometry.Vec) bool {
	va := CellVelocity(a.Vel, a.AngularVel, ra)
	vb := CellVelocity(b.Vel, b.AngularVel, rb)
	closing := r2.Dot(r2.Sub(vb, va), n)
	if closing >= 0 {
		return false
	}

	denom := 1/a.Mass + 1/b.Mass
	ca, cb := r2.Cross(ra, n), r2.Cross(rb, n)
	if a.AngularMass > Epsilon {
		denom += ca * ca / a.AngularMass
	}
	if b.AngularMass > Epsilon {
		denom += cb * cb / b.AngularMass
	}
	j := -2 * closing / denom

	a.Vel = r2.Sub(a.Vel, r2.Scale(j/a.Mass, n))
	b.Vel = r2.Add(b.Vel, r2.Scale(j/b.Mass, n))
	if a.AngularMass > Epsilon {
		a.AngularVel -= j * ca / a.AngularMass / radPerDeg
	}
	if b.AngularMass > Epsilon {
		b.AngularVel += j * cb / b.AngularMass / radPerDeg
	}
	return true
}

// ClosingSpeed returns the speed at which the contact points approach along n (positive when approaching).
func ClosingSpeed(a, b Body, ra, rb, n geometry.Vec) float64 {
	va := CellVelocity(a.Vel, a.AngularVel, ra)
	vb := CellVelocity(b.Vel, b.AngularVel, rb)
	return -r2.Dot(r2.Sub(vb, va), n)
}
