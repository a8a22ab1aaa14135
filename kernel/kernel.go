// Package kernel defines the accelerator boundary and a CPU reference implementation of it.
package kernel

import (
	"errors"
	"image"
	"log/slog"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/transfer"
)

// ErrUnknownCell is returned when a buffer references a cell that does not belong to its cluster.
var ErrUnknownCell = errors.New("unknown cell")

// Kernel owns the accelerator-resident world. Calls are made from a single goroutine.
type Kernel interface {
	// Clear discards all world state.
	Clear()
	// Extract writes every cluster whose center, and every particle whose position,
	// lies in region into buf.
	Extract(region geometry.Rect, buf *transfer.Buffer) error
	// Install replaces the entities in region, and any entity whose id occurs in buf,
	// with the content of buf.
	Install(region geometry.Rect, buf *transfer.Buffer) error
	// Step advances the simulation by one timestep.
	Step()
	// Render draws region into img, with region.P1 at the image origin.
	Render(region geometry.Rect, img *image.RGBA)
	// Stats returns aggregate statistics of the world.
	Stats() Stats
	// ApplyAction applies a user drag to nearby entities.
	ApplyAction(a Action)
	SetSimulationParameters(p config.SimulationParameters)
	SetExecutionParameters(p config.ExecutionParameters)
}

// Action is a user drag from From to To in world coordinates.
type Action struct {
	From, To geometry.Vec
}

// Stats holds aggregate world statistics.
type Stats struct {
	Timestep  uint64
	Clusters  int
	Cells     int
	Particles int
	Tokens    int

	InternalEnergy    float64 // cell, token and particle energy
	LinearKinetic     float64
	RotationalKinetic float64
}

// TotalEnergy returns internal plus kinetic energy.
func (s Stats) TotalEnergy() float64 {
	return s.InternalEnergy + s.LinearKinetic + s.RotationalKinetic
}

// KineticEnergy returns linear plus rotational kinetic energy.
func (s Stats) KineticEnergy() float64 {
	return s.LinearKinetic + s.RotationalKinetic
}

// LogValue implements slog.LogValuer for structured logging.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("timestep", s.Timestep),
		slog.Int("clusters", s.Clusters),
		slog.Int("cells", s.Cells),
		slog.Int("particles", s.Particles),
		slog.Int("tokens", s.Tokens),
		slog.Float64("total_energy", s.TotalEnergy()),
	)
}
