package kernel

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/components"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/physics"
)

// clusterState is the working copy of a cluster during a step.
// Component pointers stay valid until the first structural change at the end of the step.
type clusterState struct {
	entity   ecs.Entity
	pos      *components.Position
	vel      *components.Velocity
	rot      *components.Rotation
	cells    *components.CellBuffer
	identity *components.Identity

	positions []geometry.Vec // unwrapped absolute cell positions
	merged    bool           // fused into another cluster this step
	fused     bool           // absorbed another cluster this step
}

func (c *clusterState) body() physics.Body {
	b := physics.Body{
		Mass:       float64(c.cells.Count()),
		Center:     c.pos.Vec(),
		Vel:        c.vel.Vec(),
		AngularVel: c.rot.AngularVel,
	}
	for i := range c.cells.Cells {
		b.AngularMass += r2.Norm2(c.cells.Cells[i].Rel)
	}
	return b
}

// contact is the closest approach between two clusters, plus every cell pair in range.
type contact struct {
	a, b     int
	cellA    int
	cellB    int
	d        geometry.Vec // from cellA to cellB
	distSq   float64
	pairs    []cellPair
	overlaps []cellPair
}

type cellPair struct {
	a, b int
	d    geometry.Vec
}

// Step advances the world by one timestep.
func (k *CPU) Step() {
	k.collect()
	k.move()
	k.updatePositions()
	contacts := k.findContacts()
	k.resolveContacts(contacts)
	k.applyStress()
	k.decompose()
	k.timestep++
}

// collect loads every cluster into the working set.
func (k *CPU) collect() {
	k.clusters = k.clusters[:0]
	query := k.clusterFilter.Query()
	for query.Next() {
		pos, vel, rot, cells, identity := query.Get()
		k.clusters = append(k.clusters, clusterState{
			entity:   query.Entity(),
			pos:      pos,
			vel:      vel,
			rot:      rot,
			cells:    cells,
			identity: identity,
		})
	}
}

// move applies velocities to clusters and particles.
func (k *CPU) move() {
	for i := range k.clusters {
		c := &k.clusters[i]
		c.pos.Set(k.space.Correct(r2.Add(c.pos.Vec(), c.vel.Vec())))
		c.rot.Angle = normalizeAngle(c.rot.Angle + c.rot.AngularVel)
	}

	query := k.particleFilter.Query()
	for query.Next() {
		pos, vel, _ := query.Get()
		pos.Set(k.space.Correct(r2.Add(pos.Vec(), vel.Vec())))
	}
}

// updatePositions recomputes absolute cell positions, in parallel for large worlds.
func (k *CPU) updatePositions() {
	k.parallel.run(len(k.clusters), func(start, end int) {
		for i := start; i < end; i++ {
			k.updateClusterPositions(i)
		}
	})
}

func (k *CPU) updateClusterPositions(i int) {
	c := &k.clusters[i]
	c.positions = c.cells.Positions(c.positions[:0], c.pos.Vec(), c.rot.Angle)
}

// findContacts returns, per pair of clusters with cells in contact range, the closest cell pair.
func (k *CPU) findContacts() []*contact {
	k.grid.Clear()
	for ci := range k.clusters {
		for i, p := range k.clusters[ci].positions {
			k.grid.Insert(cellRef{Cluster: ci, Cell: i}, p)
		}
	}

	type pairKey struct{ a, b int }
	byPair := make(map[pairKey]*contact)
	var contacts []*contact

	minSq := k.params.CellMinDistance * k.params.CellMinDistance
	for ci := range k.clusters {
		for i, p := range k.clusters[ci].positions {
			k.neighbors = k.grid.QueryRadiusInto(k.neighbors[:0], p, k.params.CellContactDistance, ci)
			for _, n := range k.neighbors {
				if n.Ref.Cluster < ci {
					continue // each pair once, from the lower cluster index
				}
				key := pairKey{ci, n.Ref.Cluster}
				c, ok := byPair[key]
				if !ok {
					c = &contact{a: ci, b: n.Ref.Cluster, distSq: math.Inf(1)}
					byPair[key] = c
					contacts = append(contacts, c)
				}
				pair := cellPair{a: i, b: n.Ref.Cell, d: n.D}
				c.pairs = append(c.pairs, pair)
				if n.DistSq < minSq {
					c.overlaps = append(c.overlaps, pair)
				}
				if n.DistSq < c.distSq {
					c.cellA, c.cellB, c.d, c.distSq = i, n.Ref.Cell, n.D, n.DistSq
				}
			}
		}
	}

	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].a != contacts[j].a {
			return contacts[i].a < contacts[j].a
		}
		return contacts[i].b < contacts[j].b
	})
	return contacts
}

// resolveContacts destroys overlapping cells, fuses fast approaches and rebounds the rest.
func (k *CPU) resolveContacts(contacts []*contact) {
	minDist := k.params.CellMinDistance
	for _, c := range contacts {
		a, b := &k.clusters[c.a], &k.clusters[c.b]
		if a.merged || b.merged || a.fused || b.fused {
			continue
		}

		if math.Sqrt(c.distSq) < minDist {
			k.destroyOverlaps(c)
			continue
		}

		bodyA, bodyB := a.body(), b.body()
		ra := r2.Sub(a.positions[c.cellA], a.pos.Vec())
		rb := r2.Sub(b.positions[c.cellB], b.pos.Vec())
		n := r2.Unit(c.d)

		closing := physics.ClosingSpeed(bodyA, bodyB, ra, rb, n)
		if closing > k.params.CellFusionVelocity && k.canBond(c) {
			k.fuse(c)
			continue
		}
		if physics.Collide(&bodyA, &bodyB, ra, rb, n) {
			a.vel.Set(bodyA.Vel)
			a.rot.AngularVel = bodyA.AngularVel
			b.vel.Set(bodyB.Vel)
			b.rot.AngularVel = bodyB.AngularVel
		}
	}
}

// destroyOverlaps marks the overlapping cells of the smaller cluster of c as destroyed.
func (k *CPU) destroyOverlaps(c *contact) {
	a, b := &k.clusters[c.a], &k.clusters[c.b]
	smallerIsA := a.cells.Count() < b.cells.Count()
	for _, pair := range c.overlaps {
		if smallerIsA {
			a.cells.Cells[pair.a].Destroyed = true
		} else {
			b.cells.Cells[pair.b].Destroyed = true
		}
	}
}

func (k *CPU) canBond(c *contact) bool {
	a, b := &k.clusters[c.a], &k.clusters[c.b]
	for _, pair := range c.pairs {
		if a.cells.CanConnect(pair.a) && b.cells.CanConnect(pair.b) {
			return true
		}
	}
	return false
}

// fuse merges cluster c.b into c.a, keeping c.a's entity and angle.
// Linear and angular momentum are conserved by physics.FusionVelocities.
func (k *CPU) fuse(c *contact) {
	a, b := &k.clusters[c.a], &k.clusters[c.b]
	bodyA, bodyB := a.body(), b.body()

	// Express b in a's unwrapped frame.
	centerA := a.pos.Vec()
	shift := r2.Sub(k.space.Displacement(centerA, b.pos.Vec()), r2.Sub(b.pos.Vec(), centerA))
	bodyB.Center = r2.Add(bodyB.Center, shift)
	vel, angularVel := physics.FusionVelocities(bodyA, bodyB)

	positions := append([]geometry.Vec(nil), a.positions...)
	for _, p := range b.positions {
		positions = append(positions, r2.Add(p, shift))
	}
	center := physics.Centroid(positions)

	offset := a.cells.Count()
	for i := range b.cells.Cells {
		cell := b.cells.Cells[i]
		conns := make([]int, len(cell.Connections))
		for j, other := range cell.Connections {
			conns[j] = other + offset
		}
		cell.Connections = conns
		a.cells.Cells = append(a.cells.Cells, cell)
	}
	for i := range a.cells.Cells {
		a.cells.Cells[i].Rel = geometry.Rotate(r2.Sub(positions[i], center), -a.rot.Angle)
	}
	for _, pair := range c.pairs {
		a.cells.Connect(pair.a, pair.b+offset)
	}

	// Keep positions in the frame of the wrapped center.
	wrapped := k.space.Correct(center)
	frame := r2.Sub(wrapped, center)
	for i := range positions {
		positions[i] = r2.Add(positions[i], frame)
	}

	a.pos.Set(wrapped)
	a.vel.Set(vel)
	a.rot.AngularVel = angularVel
	a.positions = positions
	a.fused = true
	if a.identity.Name == "" {
		a.identity.Name = b.identity.Name
	}

	b.cells.Cells = nil
	b.merged = true
}

// applyStress tears off cells whose centripetal acceleration exceeds CellMaxForce.
func (k *CPU) applyStress() {
	for ci := range k.clusters {
		c := &k.clusters[ci]
		if c.merged || c.rot.AngularVel == 0 {
			continue
		}
		for i := range c.cells.Cells {
			cell := &c.cells.Cells[i]
			if physics.CentripetalAcceleration(c.rot.AngularVel, cell.Rel) <= k.params.CellMaxForce {
				continue
			}
			for _, j := range cell.Connections {
				c.cells.Cells[j].Connections = removeIndex(c.cells.Cells[j].Connections, i)
			}
			cell.Connections = nil
		}
	}
}

func removeIndex(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
