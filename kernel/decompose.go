package kernel

import (
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/components"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/physics"
)

// fragment is a cluster split off during decomposition, spawned after the step.
type fragment struct {
	pos      components.Position
	vel      components.Velocity
	rot      components.Rotation
	cells    components.CellBuffer
	identity components.Identity
}

// releasedParticle carries the energy of a removed cell.
type releasedParticle struct {
	pos   components.Position
	vel   components.Velocity
	state components.ParticleState
}

// decompose removes destroyed and low-energy cells, releasing their energy as particles,
// and splits every cluster into its connected components. Each component keeps the
// cluster's angle and gets rigid-body velocities from its cells' motion.
func (k *CPU) decompose() {
	var (
		dead      []ecs.Entity
		fragments []fragment
		released  []releasedParticle
	)

	for ci := range k.clusters {
		c := &k.clusters[ci]
		if c.merged {
			dead = append(dead, c.entity)
			continue
		}

		center, vel, angle, angularVel := c.pos.Vec(), c.vel.Vec(), c.rot.Angle, c.rot.AngularVel

		g := simple.NewUndirectedGraph()
		for i := range c.cells.Cells {
			cell := &c.cells.Cells[i]
			if cell.Destroyed || cell.Energy < k.params.CellMinEnergy {
				energy := cell.Energy
				for _, t := range cell.Tokens {
					energy += t.Energy
				}
				rel := r2.Sub(c.positions[i], center)
				p := releasedParticle{state: components.ParticleState{ID: k.newID(), Energy: energy}}
				p.pos.Set(k.space.Correct(c.positions[i]))
				p.vel.Set(physics.CellVelocity(vel, angularVel, rel))
				released = append(released, p)
				continue
			}
			g.AddNode(simple.Node(i))
		}
		for i := range c.cells.Cells {
			if g.Node(int64(i)) == nil {
				continue
			}
			for _, j := range c.cells.Cells[i].Connections {
				if j > i && g.Node(int64(j)) != nil {
					g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
				}
			}
		}

		comps := topo.ConnectedComponents(g)
		if len(comps) == 0 {
			dead = append(dead, c.entity)
			continue
		}
		if len(comps) == 1 && len(comps[0]) == c.cells.Count() {
			continue
		}

		parts := make([][]int, len(comps))
		for i, comp := range comps {
			for _, n := range comp {
				parts[i] = append(parts[i], int(n.ID()))
			}
			sort.Ints(parts[i])
		}
		// Largest component first keeps the entity; ties broken by lowest cell index.
		sort.Slice(parts, func(i, j int) bool {
			if len(parts[i]) != len(parts[j]) {
				return len(parts[i]) > len(parts[j])
			}
			return parts[i][0] < parts[j][0]
		})

		old := c.cells.Cells
		for pi, part := range parts {
			f := k.split(old, c.positions, part, center, vel, angle, angularVel)
			if pi == 0 {
				*c.pos = f.pos
				*c.vel = f.vel
				*c.rot = f.rot
				c.cells.Cells = f.cells.Cells
				continue
			}
			f.identity = components.Identity{ID: k.newID(), Name: c.identity.Name}
			fragments = append(fragments, f)
		}
	}

	// Structural changes last: component pointers of the working set are invalid afterwards.
	for _, e := range dead {
		k.world.RemoveEntity(e)
	}
	for i := range fragments {
		f := &fragments[i]
		k.clusterMapper.NewEntity(&f.pos, &f.vel, &f.rot, &f.cells, &f.identity)
	}
	for i := range released {
		p := &released[i]
		k.particleMapper.NewEntity(&p.pos, &p.vel, &p.state)
	}
	k.clusters = k.clusters[:0]
}

// split builds the cluster made of the cells at indices part.
func (k *CPU) split(cells []components.Cell, positions []geometry.Vec, part []int,
	center, vel geometry.Vec, angle, angularVel float64) fragment {

	partPositions := make([]geometry.Vec, len(part))
	remap := make(map[int]int, len(part))
	for i, idx := range part {
		partPositions[i] = positions[idx]
		remap[idx] = i
	}
	partVel, partAngularVel := physics.PartVelocities(partPositions, center, vel, angularVel)
	partCenter := physics.Centroid(partPositions)

	var f fragment
	f.pos.Set(k.space.Correct(partCenter))
	f.vel.Set(partVel)
	f.rot = components.Rotation{Angle: angle, AngularVel: partAngularVel}
	f.cells.Cells = make([]components.Cell, len(part))
	for i, idx := range part {
		cell := cells[idx]
		var conns []int
		for _, j := range cell.Connections {
			if nj, ok := remap[j]; ok {
				conns = append(conns, nj)
			}
		}
		cell.Connections = conns
		cell.Rel = geometry.Rotate(r2.Sub(partPositions[i], partCenter), -angle)
		f.cells.Cells[i] = cell
	}
	return f
}
