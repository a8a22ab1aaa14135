package kernel

import (
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/clusters/components"
	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/geometry"
)

// defaultParallelThreshold is the minimum cluster count to compute cell positions in parallel.
// Below this, single-threaded is faster due to goroutine overhead.
const defaultParallelThreshold = 64

// CPU is a reference Kernel that keeps the world in an ECS and steps it on the host.
type CPU struct {
	space  geometry.Space
	params config.SimulationParameters
	exec   config.ExecutionParameters
	rng    *rand.Rand
	logger *slog.Logger

	world          *ecs.World
	clusterMapper  *ecs.Map5[components.Position, components.Velocity, components.Rotation, components.CellBuffer, components.Identity]
	clusterFilter  *ecs.Filter5[components.Position, components.Velocity, components.Rotation, components.CellBuffer, components.Identity]
	particleMapper *ecs.Map3[components.Position, components.Velocity, components.ParticleState]
	particleFilter *ecs.Filter3[components.Position, components.Velocity, components.ParticleState]

	grid     *SpatialGrid
	parallel *parallelState

	// Working set of the current step, reused across steps.
	clusters  []clusterState
	neighbors []Neighbor

	timestep uint64
}

// Option configures a CPU kernel.
type Option func(*CPU)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *CPU) { k.logger = l }
}

// WithSeed seeds the generator used for ids of split-off clusters and released particles.
func WithSeed(seed int64) Option {
	return func(k *CPU) { k.rng = rand.New(rand.NewSource(seed)) }
}

// WithParallelThreshold sets the cluster count above which cell positions are computed in parallel.
func WithParallelThreshold(n int) Option {
	return func(k *CPU) { k.parallel.threshold = n }
}

// NewCPU creates an empty world of the given size.
func NewCPU(space geometry.Space, params config.SimulationParameters, exec config.ExecutionParameters, opts ...Option) *CPU {
	world := ecs.NewWorld()

	k := &CPU{
		space:  space,
		params: params,
		exec:   exec,
		rng:    rand.New(rand.NewSource(1)),
		logger: slog.Default(),
		world:  world,
		clusterMapper: ecs.NewMap5[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.CellBuffer,
			components.Identity,
		](world),
		clusterFilter: ecs.NewFilter5[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.CellBuffer,
			components.Identity,
		](world),
		particleMapper: ecs.NewMap3[components.Position, components.Velocity, components.ParticleState](world),
		particleFilter: ecs.NewFilter3[components.Position, components.Velocity, components.ParticleState](world),
		parallel:       newParallelState(defaultParallelThreshold),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.grid = NewSpatialGrid(space, params.CellContactDistance)
	return k
}

// Close stops the worker goroutines.
func (k *CPU) Close() {
	k.parallel.stopWorkers()
}

// Space returns the world space.
func (k *CPU) Space() geometry.Space { return k.space }

// Clear discards all world state.
func (k *CPU) Clear() {
	var dead []ecs.Entity
	query := k.clusterFilter.Query()
	for query.Next() {
		dead = append(dead, query.Entity())
	}
	pquery := k.particleFilter.Query()
	for pquery.Next() {
		dead = append(dead, pquery.Entity())
	}
	for _, e := range dead {
		k.world.RemoveEntity(e)
	}
	k.timestep = 0
}

// SetSimulationParameters replaces the physics parameters.
func (k *CPU) SetSimulationParameters(p config.SimulationParameters) {
	if p.CellContactDistance != k.params.CellContactDistance {
		k.grid = NewSpatialGrid(k.space, p.CellContactDistance)
	}
	k.params = p
}

// SetExecutionParameters replaces the execution parameters.
func (k *CPU) SetExecutionParameters(p config.ExecutionParameters) {
	k.exec = p
}

// ApplyAction adds (To-From)·ActionStrength to the velocity of every cluster and
// particle within ActionRadius of From.
func (k *CPU) ApplyAction(a Action) {
	delta := k.space.Displacement(a.From, a.To)
	dv := geometry.Vec{X: delta.X * k.params.ActionStrength, Y: delta.Y * k.params.ActionStrength}

	query := k.clusterFilter.Query()
	for query.Next() {
		pos, vel, _, _, _ := query.Get()
		if k.space.Distance(a.From, pos.Vec()) <= k.params.ActionRadius {
			vel.X += dv.X
			vel.Y += dv.Y
		}
	}
	pquery := k.particleFilter.Query()
	for pquery.Next() {
		pos, vel, _ := pquery.Get()
		if k.space.Distance(a.From, pos.Vec()) <= k.params.ActionRadius {
			vel.X += dv.X
			vel.Y += dv.Y
		}
	}
}

func (k *CPU) newID() uint64 {
	for {
		if id := k.rng.Uint64(); id != 0 {
			return id
		}
	}
}
