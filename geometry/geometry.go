// Package geometry provides the toroidal world space and region types.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Vec is a 2D vector in world coordinates.
type Vec = r2.Vec

// Space is a toroidal (wraparound) world of fixed size.
// Every position is implicitly reduced modulo the size.
type Space struct {
	Width, Height int
}

// Size returns the world extent as a vector.
func (s Space) Size() Vec {
	return Vec{X: float64(s.Width), Y: float64(s.Height)}
}

// Correct reduces a position into [0, Width) x [0, Height).
func (s Space) Correct(p Vec) Vec {
	return Vec{X: wrap(p.X, float64(s.Width)), Y: wrap(p.Y, float64(s.Height))}
}

// Displacement returns the shortest vector from a to b, taking wraparound into account.
func (s Space) Displacement(a, b Vec) Vec {
	return Vec{
		X: minimalImage(b.X-a.X, float64(s.Width)),
		Y: minimalImage(b.Y-a.Y, float64(s.Height)),
	}
}

// Distance returns the wraparound distance between a and b.
func (s Space) Distance(a, b Vec) float64 {
	return r2.Norm(s.Displacement(a, b))
}

// World returns the region covering the whole space.
func (s Space) World() Rect {
	return Rect{P1: IntVec{}, P2: IntVec{X: s.Width, Y: s.Height}}
}

// Rect is an inclusive rectangle {P1, P2} in world coordinates.
// A rect may extend past the world extent, in which case it spans the seam.
type Rect struct {
	P1, P2 IntVec
}

// IntVec is an integer world coordinate.
type IntVec struct {
	X, Y int
}

// Width returns the horizontal extent of the rect.
func (r Rect) Width() int { return r.P2.X - r.P1.X + 1 }

// Height returns the vertical extent of the rect.
func (r Rect) Height() int { return r.P2.Y - r.P1.Y + 1 }

// Contains reports whether p, or one of its wraparound images, lies inside the rect.
func (r Rect) Contains(s Space, p Vec) bool {
	p = s.Correct(p)
	w, h := float64(s.Width), float64(s.Height)
	for _, dx := range [3]float64{0, -w, w} {
		for _, dy := range [3]float64{0, -h, h} {
			x, y := p.X+dx, p.Y+dy
			if x >= float64(r.P1.X) && x <= float64(r.P2.X) && y >= float64(r.P1.Y) && y <= float64(r.P2.Y) {
				return true
			}
		}
	}
	return false
}

// Covers reports whether the rect spans the whole space.
func (r Rect) Covers(s Space) bool {
	return r.P1.X <= 0 && r.P1.Y <= 0 && r.P2.X >= s.Width-1 && r.P2.Y >= s.Height-1
}

// Rotate rotates v by angle degrees counterclockwise about the origin.
func Rotate(v Vec, degrees float64) Vec {
	return r2.Rotate(v, degrees*math.Pi/180, Vec{})
}

// IsZero reports whether v is the zero vector.
func IsZero(v Vec) bool {
	return v.X == 0 && v.Y == 0
}

func wrap(v, size float64) float64 {
	if size <= 0 {
		return v
	}
	v = math.Mod(v, size)
	if v < 0 {
		v += size
	}
	// math.Mod of a tiny negative value can round up to size.
	if v >= size {
		v = 0
	}
	return v
}

func minimalImage(d, size float64) float64 {
	if size <= 0 {
		return d
	}
	d = math.Mod(d, size)
	if d > size/2 {
		d -= size
	} else if d < -size/2 {
		d += size
	}
	return d
}
