package transfer

import (
	"errors"
	"math/rand"
	"testing"
)

var small = Capacity{MaxClusters: 2, MaxCells: 3, MaxParticles: 2, MaxTokens: 1, MetadataBytes: 8}

func TestPoolConservation(t *testing.T) {
	p := NewPool(small, nil)
	rng := rand.New(rand.NewSource(1))

	var held []Handle
	for i := 0; i < 500; i++ {
		if len(held) == 0 || rng.Intn(2) == 0 {
			h, buf := p.Acquire()
			if buf == nil {
				t.Fatal("Acquire returned nil buffer")
			}
			for _, other := range held {
				if other == h {
					t.Fatalf("handle %d handed out twice", h)
				}
			}
			held = append(held, h)
		} else {
			k := rng.Intn(len(held))
			if !p.Release(held[k]) {
				t.Fatalf("Release(%d) of used handle returned false", held[k])
			}
			held = append(held[:k], held[k+1:]...)
		}

		s := p.Stats()
		if s.Used+s.Free != s.Allocated {
			t.Fatalf("step %d: used %d + free %d != allocated %d", i, s.Used, s.Free, s.Allocated)
		}
		if s.Used != len(held) {
			t.Fatalf("step %d: used = %d, want %d", i, s.Used, len(held))
		}
	}
}

func TestPoolReusesReleasedSlot(t *testing.T) {
	p := NewPool(small, nil)

	h1, b1 := p.Acquire()
	if _, err := b1.AddParticle(ParticleTO{ID: 1}); err != nil {
		t.Fatal(err)
	}
	p.Release(h1)

	h2, b2 := p.Acquire()
	if h2 != h1 || b2 != b1 {
		t.Errorf("expected the released slot to be reused")
	}
	if !b2.Empty() {
		t.Error("reused buffer should be reset")
	}
	if s := p.Stats(); s.Allocated != 1 {
		t.Errorf("allocated = %d, want 1", s.Allocated)
	}
}

func TestPoolStaleRelease(t *testing.T) {
	p := NewPool(small, nil)
	h, _ := p.Acquire()

	tests := []struct {
		name   string
		handle Handle
		want   bool
	}{
		{"used handle", h, true},
		{"double release", h, false},
		{"unknown handle", Handle(42), false},
		{"no handle", NoHandle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Release(tt.handle); got != tt.want {
				t.Errorf("Release(%d) = %v, want %v", tt.handle, got, tt.want)
			}
		})
	}

	s := p.Stats()
	if s.StaleReleases != 3 {
		t.Errorf("stale releases = %d, want 3", s.StaleReleases)
	}
	if s.Used != 0 || s.Free != 1 {
		t.Errorf("stats = %+v, want 0 used, 1 free", s)
	}
}

func TestPoolClose(t *testing.T) {
	p := NewPool(small, nil)
	h, _ := p.Acquire()
	p.Acquire()
	p.Close()

	if s := p.Stats(); s.Allocated != 0 || s.Used != 0 {
		t.Errorf("stats after close = %+v, want empty", s)
	}
	if p.Release(h) {
		t.Error("release after close should be stale")
	}
	if p.Buffer(h) != nil {
		t.Error("Buffer after close should be nil")
	}

	defer func() {
		if recover() == nil {
			t.Error("Acquire on closed pool should panic")
		}
	}()
	p.Acquire()
}

func TestBufferCapacity(t *testing.T) {
	b := NewBuffer(small)

	for i := 0; i < small.MaxCells; i++ {
		if _, err := b.AddCell(CellTO{ID: uint64(i)}); err != nil {
			t.Fatalf("AddCell %d: %v", i, err)
		}
	}
	if _, err := b.AddCell(CellTO{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("AddCell beyond capacity: err = %v, want ErrCapacityExceeded", err)
	}
	if _, err := b.AddToken(TokenTO{}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddToken(TokenTO{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("AddToken beyond capacity: err = %v", err)
	}
	if _, err := b.AddString("too long for pool"); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("AddString beyond capacity: err = %v", err)
	}

	_, cells, _, _ := b.Counts()
	if cells != small.MaxCells {
		t.Errorf("cells = %d, want %d (no truncation or growth)", cells, small.MaxCells)
	}
}

func TestBufferMetadata(t *testing.T) {
	b := NewBuffer(small)
	r1, err := b.AddString("ab")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := b.AddString("cde")
	if err != nil {
		t.Fatal(err)
	}
	if b.String(r1) != "ab" || b.String(r2) != "cde" {
		t.Errorf("strings = %q, %q", b.String(r1), b.String(r2))
	}
	if b.String(Ref{}) != "" {
		t.Error("empty ref should be empty string")
	}
}

func TestBufferConnect(t *testing.T) {
	b := NewBuffer(Capacity{MaxCells: 8})
	for i := 0; i < 8; i++ {
		b.AddCell(CellTO{ID: uint64(i)})
	}
	for j := 1; j <= MaxCellConnections; j++ {
		if err := b.Connect(0, j); err != nil {
			t.Fatalf("Connect(0, %d): %v", j, err)
		}
	}
	if err := b.Connect(0, 1); err != nil {
		t.Errorf("reconnecting an existing pair should be a no-op, got %v", err)
	}
	if err := b.Connect(0, 7); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Connect beyond slots: err = %v, want ErrCapacityExceeded", err)
	}

	cells := b.Cells()
	if cells[0].NumConnections != MaxCellConnections || cells[1].Connections[0] != 0 {
		t.Errorf("connections not symmetric: %+v / %+v", cells[0], cells[1])
	}
}

func TestCapacityCheck(t *testing.T) {
	if err := small.Check(2, 3, 2, 1); err != nil {
		t.Errorf("Check at ceiling: %v", err)
	}
	if err := small.Check(0, 4, 0, 0); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Check above ceiling: err = %v", err)
	}
}
