// Package scenario builds cluster and particle descriptions for initial populations and tests.
package scenario

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
)

// Builder creates descriptions with sequential ids, starting at 1.
type Builder struct {
	params config.SimulationParameters
	nextID uint64
}

// NewBuilder returns a builder whose cells use the energy and connection defaults of params.
func NewBuilder(params config.SimulationParameters) *Builder {
	return &Builder{params: params, nextID: 1}
}

// NextID returns a fresh id.
func (b *Builder) NextID() uint64 {
	id := b.nextID
	b.nextID++
	return id
}

// Cell returns an unconnected cell at pos with default energy.
func (b *Builder) Cell(pos geometry.Vec) description.Cell {
	return description.Cell{
		ID:             b.NextID(),
		Pos:            pos,
		Energy:         b.params.CellDefaultEnergy,
		MaxConnections: b.params.CellMaxConnections,
	}
}

// LineCluster returns a chain of n cells spaced one unit apart along dir, centered at center.
func (b *Builder) LineCluster(n int, center, dir, vel geometry.Vec, angularVel float64) description.Cluster {
	c := description.Cluster{ID: b.NextID(), Vel: vel, AngularVel: angularVel}
	dir = r2.Unit(dir)
	for i := 0; i < n; i++ {
		offset := r2.Scale(float64(i)-float64(n-1)/2, dir)
		c.Cells = append(c.Cells, b.Cell(r2.Add(center, offset)))
		if i > 0 {
			c.Connect(i-1, i)
		}
	}
	c.UpdateCenter()
	return c
}

// HorizontalCluster returns a horizontal line of n cells centered at center.
func (b *Builder) HorizontalCluster(n int, center, vel geometry.Vec, angularVel float64) description.Cluster {
	return b.LineCluster(n, center, geometry.Vec{X: 1}, vel, angularVel)
}

// VerticalCluster returns a vertical line of n cells centered at center.
func (b *Builder) VerticalCluster(n int, center, vel geometry.Vec, angularVel float64) description.Cluster {
	return b.LineCluster(n, center, geometry.Vec{Y: 1}, vel, angularVel)
}

// RectangularCluster returns a w x h grid of cells with 4-neighbour connections, centered at center.
func (b *Builder) RectangularCluster(w, h int, center, vel geometry.Vec, angularVel float64) description.Cluster {
	c := description.Cluster{ID: b.NextID(), Vel: vel, AngularVel: angularVel}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := geometry.Vec{
				X: center.X + float64(x) - float64(w-1)/2,
				Y: center.Y + float64(y) - float64(h-1)/2,
			}
			c.Cells = append(c.Cells, b.Cell(pos))
			i := len(c.Cells) - 1
			if x > 0 {
				c.Connect(i-1, i)
			}
			if y > 0 {
				c.Connect(i-w, i)
			}
		}
	}
	c.UpdateCenter()
	return c
}

// Particle returns a free particle.
func (b *Builder) Particle(pos, vel geometry.Vec, energy float64) description.Particle {
	return description.Particle{ID: b.NextID(), Pos: pos, Vel: vel, Energy: energy}
}

// RandomPopulation scatters rectangular clusters and particles over the world.
// Clusters are placed on a coarse grid so that they never overlap initially.
func (b *Builder) RandomPopulation(rng *rand.Rand, space geometry.Space, cfg config.ScenarioConfig) description.Data {
	var data description.Data

	spacing := float64(max(cfg.ClusterWidth, cfg.ClusterHeight) + 2)
	cols := max(int(float64(space.Width)/spacing), 1)
	rows := max(int(float64(space.Height)/spacing), 1)
	slots := rng.Perm(cols * rows)

	for i := 0; i < cfg.Clusters && i < len(slots); i++ {
		col, row := slots[i]%cols, slots[i]/cols
		center := geometry.Vec{X: (float64(col) + 0.5) * spacing, Y: (float64(row) + 0.5) * spacing}
		data.AddCluster(b.RectangularCluster(cfg.ClusterWidth, cfg.ClusterHeight, center, randomVel(rng, cfg.MaxSpeed), 0))
	}
	for i := 0; i < cfg.Particles; i++ {
		pos := geometry.Vec{X: rng.Float64() * float64(space.Width), Y: rng.Float64() * float64(space.Height)}
		data.AddParticle(b.Particle(pos, randomVel(rng, cfg.MaxSpeed), b.params.CellMinEnergy))
	}
	return data
}

func randomVel(rng *rand.Rand, maxSpeed float64) geometry.Vec {
	return geometry.Vec{X: (rng.Float64()*2 - 1) * maxSpeed, Y: (rng.Float64()*2 - 1) * maxSpeed}
}
