package description

import (
	"math"
	"testing"

	"github.com/pthm-cable/clusters/geometry"
)

func lineCluster(id uint64, n int) Cluster {
	c := Cluster{ID: id}
	for i := 0; i < n; i++ {
		c.Cells = append(c.Cells, Cell{
			ID:     id*100 + uint64(i),
			Pos:    geometry.Vec{X: float64(i), Y: 10},
			Energy: 100,
		})
		if i > 0 {
			c.Connect(i-1, i)
		}
	}
	c.UpdateCenter()
	return c
}

func TestCentroid(t *testing.T) {
	c := lineCluster(1, 5)
	if math.Abs(c.Pos.X-2) > 1e-9 || math.Abs(c.Pos.Y-10) > 1e-9 {
		t.Errorf("centroid = %v, want (2, 10)", c.Pos)
	}

	empty := Cluster{Pos: geometry.Vec{X: 3, Y: 4}}
	if got := empty.Centroid(); got != empty.Pos {
		t.Errorf("centroid of empty cluster = %v, want its position", got)
	}
}

func TestConnectIsSymmetric(t *testing.T) {
	c := lineCluster(1, 3)
	c.Connect(0, 1) // already connected, must not duplicate

	if len(c.Cells[0].Connections) != 1 {
		t.Errorf("cell 0 connections = %v, want 1 entry", c.Cells[0].Connections)
	}
	if len(c.Cells[1].Connections) != 2 {
		t.Errorf("cell 1 connections = %v, want 2 entries", c.Cells[1].Connections)
	}
	for _, cell := range c.Cells {
		for _, other := range cell.Connections {
			peer := c.Cells[other-100]
			if !containsID(peer.Connections, cell.ID) {
				t.Errorf("connection %d -> %d not symmetric", cell.ID, other)
			}
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := Data{}
	c := lineCluster(1, 2)
	c.Cells[0].Feature = &Feature{Type: FeatureComputer, Data: []byte{1, 2}}
	c.Cells[0].Tokens = []Token{{Energy: 5}}
	d.AddCluster(c)

	clone := d.Clone()
	clone.Clusters[0].Cells[0].Connections[0] = 999
	clone.Clusters[0].Cells[0].Feature.Data[0] = 9
	clone.Clusters[0].Cells[0].Tokens[0].Energy = 1

	orig := d.Clusters[0].Cells[0]
	if orig.Connections[0] == 999 {
		t.Error("connections alias the clone")
	}
	if orig.Feature.Data[0] == 9 {
		t.Error("feature data aliases the clone")
	}
	if orig.Tokens[0].Energy != 5 {
		t.Error("tokens alias the clone")
	}
}

func TestDiff(t *testing.T) {
	before := Data{}
	before.AddCluster(lineCluster(1, 3))
	before.AddCluster(lineCluster(2, 2))
	before.AddParticle(Particle{ID: 7, Energy: 10})
	before.AddParticle(Particle{ID: 8, Energy: 10})

	after := before.Clone()
	after.Clusters[0].Pos.X += 5
	after.Clusters[0].Cells[1].Energy = 42
	after.Clusters = after.Clusters[:1] // cluster 2 deleted
	after.AddCluster(lineCluster(3, 4))
	after.Particles[0].Energy = 20
	after.Particles = after.Particles[:1] // particle 8 deleted

	diff := Diff(before, after)

	states := map[uint64]State{}
	for _, c := range diff.Clusters {
		states[c.ID] = c.State
	}
	want := map[uint64]State{1: Modified, 2: Deleted, 3: Added}
	for id, s := range want {
		if states[id] != s {
			t.Errorf("cluster %d state = %v, want %v", id, states[id], s)
		}
	}

	for _, c := range diff.Clusters {
		if c.ID != 1 {
			continue
		}
		old, ok := c.Pos.Old()
		if !ok || old.X != before.Clusters[0].Pos.X || c.Pos.Value().X != old.X+5 {
			t.Errorf("cluster 1 position change = %+v", c.Pos)
		}
		if len(c.Cells) != 1 || c.Cells[0].ID != 101 || c.Cells[0].Energy.Value() != 42 {
			t.Errorf("cluster 1 cell changes = %+v, want energy change of cell 101", c.Cells)
		}
		if c.Vel.IsSet() || c.Angle.IsSet() {
			t.Error("unchanged fields must not be tracked")
		}
	}

	if len(diff.Particles) != 2 {
		t.Fatalf("particle changes = %d, want 2", len(diff.Particles))
	}
	if diff.Particles[0].State != Modified || diff.Particles[0].Energy.Value() != 20 {
		t.Errorf("particle 7 change = %+v", diff.Particles[0])
	}
	if diff.Particles[1].State != Deleted || diff.Particles[1].ID != 8 {
		t.Errorf("particle 8 change = %+v", diff.Particles[1])
	}
}

func TestDiffUnchangedIsEmpty(t *testing.T) {
	d := Data{}
	d.AddCluster(lineCluster(1, 4))
	d.AddParticle(Particle{ID: 3})

	if diff := Diff(d, d.Clone()); !diff.Empty() {
		t.Errorf("diff of identical snapshots = %+v, want empty", diff)
	}
}

func TestAdditions(t *testing.T) {
	d := Data{}
	c := lineCluster(1, 4)
	c.Cells[2].Tokens = []Token{{}, {}}
	d.AddCluster(c)
	d.AddParticle(Particle{ID: 3})

	got := AddAll(d).Additions()
	want := Counts{Clusters: 1, Cells: 4, Particles: 1, Tokens: 2}
	if got != want {
		t.Errorf("Additions() = %+v, want %+v", got, want)
	}
}

func TestDataChangeClone(t *testing.T) {
	d := Data{}
	d.AddCluster(lineCluster(1, 2))
	change := AddAll(d)

	clone := change.Clone()
	clone.Clusters[0].Cells[0].ID = 999
	clone.Clusters[0].Pos.SetValue(geometry.Vec{X: -1})

	if change.Clusters[0].Cells[0].ID == 999 {
		t.Error("cell changes alias the clone")
	}
	if change.Clusters[0].Pos.Value().X == -1 {
		t.Error("cluster change aliases the clone")
	}
}
