// Package components defines ECS components for the simulated world.
package components

import (
	"github.com/pthm-cable/clusters/geometry"
)

// Position represents a cluster center or particle position in world coordinates.
type Position struct {
	X, Y float64
}

// Vec returns the position as a vector.
func (p Position) Vec() geometry.Vec { return geometry.Vec{X: p.X, Y: p.Y} }

// Set assigns v.
func (p *Position) Set(v geometry.Vec) { p.X, p.Y = v.X, v.Y }

// Velocity represents a linear velocity per timestep.
type Velocity struct {
	X, Y float64
}

// Vec returns the velocity as a vector.
func (v Velocity) Vec() geometry.Vec { return geometry.Vec{X: v.X, Y: v.Y} }

// Set assigns w.
func (v *Velocity) Set(w geometry.Vec) { v.X, v.Y = w.X, w.Y }

// Rotation represents a cluster's orientation and spin.
type Rotation struct {
	Angle      float64 // degrees
	AngularVel float64 // degrees per timestep
}

// Identity bundles the stable id and metadata of a cluster.
type Identity struct {
	ID   uint64
	Name string
}

// ParticleState holds the id and energy of a free particle.
type ParticleState struct {
	ID     uint64
	Energy float64
}
