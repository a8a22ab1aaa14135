package description

import (
	"bytes"

	"github.com/pthm-cable/clusters/geometry"
)

// Tracked is an optional field of a change description.
// It carries the new value and, for modifications, the previously observed one,
// so that only deltas are reapplied to state that kept evolving meanwhile.
type Tracked[T any] struct {
	old, new T
	hasOld   bool
	set      bool
}

// Set tracks a value without an old value (used for additions).
func Set[T any](v T) Tracked[T] {
	return Tracked[T]{new: v, set: true}
}

// Change tracks a modification from old to v.
func Change[T any](old, v T) Tracked[T] {
	return Tracked[T]{old: old, new: v, hasOld: true, set: true}
}

// IsSet reports whether the field is part of the change.
func (t Tracked[T]) IsSet() bool { return t.set }

// Value returns the new value.
func (t Tracked[T]) Value() T { return t.new }

// Old returns the previously observed value, if known.
func (t Tracked[T]) Old() (T, bool) { return t.old, t.hasOld }

// SetValue replaces the new value, keeping the old one.
func (t *Tracked[T]) SetValue(v T) {
	t.new = v
	t.set = true
}

// State is the kind of change applied to an entity.
type State uint8

const (
	Added State = iota
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// CellChange describes the change of a single cell.
type CellChange struct {
	ID             uint64
	State          State
	Pos            Tracked[geometry.Vec]
	Energy         Tracked[float64]
	MaxConnections Tracked[int]
	Connections    Tracked[[]uint64]
	Feature        Tracked[*Feature]
	Tokens         Tracked[[]Token]
	Metadata       Tracked[CellMetadata]
}

// ClusterChange describes the change of a cluster and its cells.
type ClusterChange struct {
	ID         uint64
	State      State
	Pos        Tracked[geometry.Vec]
	Vel        Tracked[geometry.Vec]
	Angle      Tracked[float64]
	AngularVel Tracked[float64]
	Metadata   Tracked[ClusterMetadata]
	Cells      []CellChange
}

// ParticleChange describes the change of a particle.
type ParticleChange struct {
	ID     uint64
	State  State
	Pos    Tracked[geometry.Vec]
	Vel    Tracked[geometry.Vec]
	Energy Tracked[float64]
}

// DataChange is a diff of clusters and particles against their previously observed state.
type DataChange struct {
	Clusters  []ClusterChange
	Particles []ParticleChange
}

// Empty reports whether the change contains nothing.
func (d DataChange) Empty() bool {
	return len(d.Clusters) == 0 && len(d.Particles) == 0
}

// Clone returns a copy whose slices can be modified independently.
func (d DataChange) Clone() DataChange {
	out := DataChange{
		Clusters:  make([]ClusterChange, len(d.Clusters)),
		Particles: append([]ParticleChange(nil), d.Particles...),
	}
	for i, c := range d.Clusters {
		c.Cells = append([]CellChange(nil), c.Cells...)
		out.Clusters[i] = c
	}
	return out
}

// Counts is the number of entities a change adds.
type Counts struct {
	Clusters, Cells, Particles, Tokens int
}

// Additions counts the entities the change adds.
func (d DataChange) Additions() Counts {
	var n Counts
	for _, c := range d.Clusters {
		if c.State == Added {
			n.Clusters++
		}
		if c.State == Deleted {
			continue
		}
		for _, cell := range c.Cells {
			if cell.State == Added {
				n.Cells++
				n.Tokens += len(cell.Tokens.Value())
			}
		}
	}
	for _, p := range d.Particles {
		if p.State == Added {
			n.Particles++
		}
	}
	return n
}

// AddedCell describes the addition of cell.
func AddedCell(cell Cell) CellChange {
	cell = cell.Clone()
	return CellChange{
		ID:             cell.ID,
		State:          Added,
		Pos:            Set(cell.Pos),
		Energy:         Set(cell.Energy),
		MaxConnections: Set(cell.MaxConnections),
		Connections:    Set(cell.Connections),
		Feature:        Set(cell.Feature),
		Tokens:         Set(cell.Tokens),
		Metadata:       Set(cell.Metadata),
	}
}

// AddedCluster describes the addition of c and all its cells.
func AddedCluster(c Cluster) ClusterChange {
	out := ClusterChange{
		ID:         c.ID,
		State:      Added,
		Pos:        Set(c.Pos),
		Vel:        Set(c.Vel),
		Angle:      Set(c.Angle),
		AngularVel: Set(c.AngularVel),
		Metadata:   Set(c.Metadata),
		Cells:      make([]CellChange, len(c.Cells)),
	}
	for i, cell := range c.Cells {
		out.Cells[i] = AddedCell(cell)
	}
	return out
}

// AddedParticle describes the addition of p.
func AddedParticle(p Particle) ParticleChange {
	return ParticleChange{
		ID:     p.ID,
		State:  Added,
		Pos:    Set(p.Pos),
		Vel:    Set(p.Vel),
		Energy: Set(p.Energy),
	}
}

// AddAll describes the addition of every entity in d.
func AddAll(d Data) DataChange {
	var out DataChange
	for _, c := range d.Clusters {
		out.Clusters = append(out.Clusters, AddedCluster(c))
	}
	for _, p := range d.Particles {
		out.Particles = append(out.Particles, AddedParticle(p))
	}
	return out
}

// Diff describes how after differs from before. Entities are matched by id.
func Diff(before, after Data) DataChange {
	var out DataChange

	oldClusters := before.ClusterByID()
	for _, c := range after.Clusters {
		old, ok := oldClusters[c.ID]
		if !ok {
			out.Clusters = append(out.Clusters, AddedCluster(c))
			continue
		}
		delete(oldClusters, c.ID)
		if change, changed := diffCluster(old, c); changed {
			out.Clusters = append(out.Clusters, change)
		}
	}
	for _, c := range before.Clusters {
		if _, ok := oldClusters[c.ID]; ok {
			out.Clusters = append(out.Clusters, ClusterChange{ID: c.ID, State: Deleted})
		}
	}

	oldParticles := make(map[uint64]Particle, len(before.Particles))
	for _, p := range before.Particles {
		oldParticles[p.ID] = p
	}
	for _, p := range after.Particles {
		old, ok := oldParticles[p.ID]
		if !ok {
			out.Particles = append(out.Particles, AddedParticle(p))
			continue
		}
		delete(oldParticles, p.ID)
		change := ParticleChange{ID: p.ID, State: Modified}
		changed := false
		if old.Pos != p.Pos {
			change.Pos = Change(old.Pos, p.Pos)
			changed = true
		}
		if old.Vel != p.Vel {
			change.Vel = Change(old.Vel, p.Vel)
			changed = true
		}
		if old.Energy != p.Energy {
			change.Energy = Change(old.Energy, p.Energy)
			changed = true
		}
		if changed {
			out.Particles = append(out.Particles, change)
		}
	}
	for _, p := range before.Particles {
		if _, ok := oldParticles[p.ID]; ok {
			out.Particles = append(out.Particles, ParticleChange{ID: p.ID, State: Deleted})
		}
	}

	return out
}

func diffCluster(old, c Cluster) (ClusterChange, bool) {
	change := ClusterChange{ID: c.ID, State: Modified}
	changed := false
	if old.Pos != c.Pos {
		change.Pos = Change(old.Pos, c.Pos)
		changed = true
	}
	if old.Vel != c.Vel {
		change.Vel = Change(old.Vel, c.Vel)
		changed = true
	}
	if old.Angle != c.Angle {
		change.Angle = Change(old.Angle, c.Angle)
		changed = true
	}
	if old.AngularVel != c.AngularVel {
		change.AngularVel = Change(old.AngularVel, c.AngularVel)
		changed = true
	}
	if old.Metadata != c.Metadata {
		change.Metadata = Change(old.Metadata, c.Metadata)
		changed = true
	}

	oldCells := make(map[uint64]Cell, len(old.Cells))
	for _, cell := range old.Cells {
		oldCells[cell.ID] = cell
	}
	for _, cell := range c.Cells {
		prev, ok := oldCells[cell.ID]
		if !ok {
			change.Cells = append(change.Cells, AddedCell(cell))
			changed = true
			continue
		}
		delete(oldCells, cell.ID)
		if cellChange, cellChanged := diffCell(prev, cell); cellChanged {
			change.Cells = append(change.Cells, cellChange)
			changed = true
		}
	}
	for _, cell := range old.Cells {
		if _, ok := oldCells[cell.ID]; ok {
			change.Cells = append(change.Cells, CellChange{ID: cell.ID, State: Deleted})
			changed = true
		}
	}
	return change, changed
}

func diffCell(old, cell Cell) (CellChange, bool) {
	change := CellChange{ID: cell.ID, State: Modified}
	changed := false
	if old.Pos != cell.Pos {
		change.Pos = Change(old.Pos, cell.Pos)
		changed = true
	}
	if old.Energy != cell.Energy {
		change.Energy = Change(old.Energy, cell.Energy)
		changed = true
	}
	if old.MaxConnections != cell.MaxConnections {
		change.MaxConnections = Change(old.MaxConnections, cell.MaxConnections)
		changed = true
	}
	if !equalIDs(old.Connections, cell.Connections) {
		change.Connections = Change(old.Connections, append([]uint64(nil), cell.Connections...))
		changed = true
	}
	if !equalFeature(old.Feature, cell.Feature) {
		change.Feature = Change(old.Feature, cell.Clone().Feature)
		changed = true
	}
	if !equalTokens(old.Tokens, cell.Tokens) {
		change.Tokens = Change(old.Tokens, append([]Token(nil), cell.Tokens...))
		changed = true
	}
	if old.Metadata != cell.Metadata {
		change.Metadata = Change(old.Metadata, cell.Metadata)
		changed = true
	}
	return change, changed
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalTokens(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFeature(a, b *Feature) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Type == b.Type && bytes.Equal(a.Data, b.Data)
}
