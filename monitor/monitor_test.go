package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/converter"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/scenario"
	"github.com/pthm-cable/clusters/telemetry"
	"github.com/pthm-cable/clusters/transfer"
	"github.com/pthm-cable/clusters/worker"
)

func newWorker(t *testing.T) *worker.Worker {
	t.Helper()
	space := geometry.Space{Width: 200, Height: 200}
	params := config.Default().Simulation
	k := kernel.NewCPU(space, params, config.ExecutionParameters{StepsPerIteration: 1}, kernel.WithSeed(1))
	t.Cleanup(k.Close)

	b := scenario.NewBuilder(params)
	var data description.Data
	data.AddCluster(b.RectangularCluster(3, 3, geometry.Vec{X: 50, Y: 50}, geometry.Vec{}, 0))
	data.AddParticle(b.Particle(geometry.Vec{X: 10, Y: 10}, geometry.Vec{}, 5))
	buf := transfer.NewBuffer(transfer.Capacity{MaxClusters: 4, MaxCells: 16, MaxParticles: 4, MaxTokens: 1, MetadataBytes: 64})
	if err := converter.New(space).FromDescription(buf, data); err != nil {
		t.Fatal(err)
	}
	if err := k.Install(space.World(), buf); err != nil {
		t.Fatal(err)
	}

	w := worker.New(k)
	w.Start(context.Background())
	t.Cleanup(w.Close)
	return w
}

func waitUpdate(t *testing.T, m *Monitor) kernel.Stats {
	t.Helper()
	select {
	case s := <-m.Updates():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no stats update")
	}
	return kernel.Stats{}
}

func TestRequireStats(t *testing.T) {
	m := New(newWorker(t))
	t.Cleanup(m.Close)

	if got := m.RetrieveStats(); got != (kernel.Stats{}) {
		t.Errorf("RetrieveStats() before any request = %+v", got)
	}

	m.RequireStats()
	s := waitUpdate(t, m)

	tests := []struct {
		name      string
		got, want int
	}{
		{"clusters", s.Clusters, 1},
		{"cells", s.Cells, 9},
		{"particles", s.Particles, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}
	if got := m.RetrieveStats(); got != s {
		t.Errorf("RetrieveStats() = %+v, want %+v", got, s)
	}
}

func TestStatsAreWrittenToOutput(t *testing.T) {
	dir := t.TempDir()
	om, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := New(newWorker(t), WithOutput(om))

	for i := 0; i < 2; i++ {
		m.RequireStats()
		waitUpdate(t, m)
	}
	m.Close()
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("stats.csv has %d lines, want header and 2 records:\n%s", len(lines), data)
	}
}
