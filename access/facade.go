// Package access lets editors and renderers read and modify the simulated world
// while the simulation keeps running.
//
// A Facade turns requests into worker jobs and reports results through Events.
// Structural updates go through a barrier: while an update is in flight, every
// other gated request is held back and submitted in FIFO order once the update's
// write-back has completed, so no read ever observes a half-applied write.
package access

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/converter"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/job"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/render"
	"github.com/pthm-cable/clusters/transfer"
)

var (
	// ErrBarrierViolation is the panic payload when a write-back completes
	// although no update is in progress.
	ErrBarrierViolation = errors.New("write-back completed without update in progress")

	// ErrSessionFailed is returned by every call after a write-back failed.
	ErrSessionFailed = errors.New("access session failed")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("access facade closed")

	// ErrCapacityExceeded is returned when a change cannot fit a transfer buffer.
	ErrCapacityExceeded = transfer.ErrCapacityExceeded
)

// DefaultOrigin is the origin of a facade created without WithOrigin.
const DefaultOrigin job.Origin = "access"

// Worker is the part of the job worker the facade depends on.
type Worker interface {
	Submit(j job.Job)
	Subscribe(origin job.Origin) <-chan struct{}
	DrainFinished(origin job.Origin) []job.Job
	IsSimulationRunning() bool
}

// Config holds facade settings.
type Config struct {
	Capacity transfer.Capacity
	Params   config.SimulationParameters

	// ConservativeRegion makes every update cover the whole world.
	ConservativeRegion bool
	EventBuffer        int
}

// ConfigFrom builds a facade Config from the loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Capacity:           transfer.CapacityFrom(cfg.Capacity),
		Params:             cfg.Simulation,
		ConservativeRegion: cfg.Access.ConservativeRegion,
		EventBuffer:        cfg.Access.EventBuffer,
	}
}

// Stats is a snapshot of the facade bookkeeping.
type Stats struct {
	Pool             transfer.PoolStats
	UpdateInProgress bool
	Waiting          int
	Failed           bool
}

// Facade is the asynchronous access point to the world held by a worker.
// Its methods never block on job completion.
type Facade struct {
	origin job.Origin
	worker Worker
	space  geometry.Space
	cfg    Config
	logger *slog.Logger

	pool   *transfer.Pool
	conv   *converter.Converter
	rng    *rand.Rand // completion goroutine only
	events chan Event

	mu               sync.Mutex
	params           config.SimulationParameters
	updateInProgress bool
	waiting          []job.Job
	lastRegion       geometry.Rect
	hasLastRegion    bool
	data             description.Data
	failed           error
	closed           bool

	notify    <-chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Facade.
type Option func(*Facade)

// WithOrigin sets the origin the facade submits jobs under.
// Facades sharing a worker need distinct origins.
func WithOrigin(o job.Origin) Option {
	return func(f *Facade) { f.origin = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Facade) { f.logger = l }
}

// WithRand sets the source of ids for added entities.
func WithRand(rng *rand.Rand) Option {
	return func(f *Facade) { f.rng = rng }
}

// New creates a facade for the world of space held by w and starts its completion goroutine.
func New(w Worker, space geometry.Space, cfg Config, opts ...Option) *Facade {
	f := &Facade{
		origin: DefaultOrigin,
		worker: w,
		space:  space,
		cfg:    cfg,
		params: cfg.Params,
		logger: slog.Default(),
		conv:   converter.New(space),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if f.cfg.EventBuffer <= 0 {
		f.cfg.EventBuffer = 64
	}
	f.logger = f.logger.With("origin", string(f.origin))
	f.pool = transfer.NewPool(cfg.Capacity, f.logger)
	f.events = make(chan Event, f.cfg.EventBuffer)
	f.notify = w.Subscribe(f.origin)

	go f.run()
	return f
}

// Events returns the channel results are reported on. Events are dropped
// when the channel is full.
func (f *Facade) Events() <-chan Event {
	return f.events
}

// RequireData fetches the entities in region. DataReady is emitted once
// RetrieveData returns them.
func (f *Facade) RequireData(region geometry.Rect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(); err != nil {
		return err
	}
	h, buf := f.pool.Acquire()
	f.schedule(job.NewFetchForEdit(f.origin, region, h, buf))
	return nil
}

// RequireAllData fetches the whole world.
func (f *Facade) RequireAllData() error {
	return f.RequireData(f.space.World())
}

// UpdateData applies change to the world. DataUpdated is emitted once the change
// has been merged; gated requests issued afterwards see the updated world.
func (f *Facade) UpdateData(change description.DataChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(); err != nil {
		return err
	}

	n := change.Additions()
	if err := f.cfg.Capacity.Check(n.Clusters, n.Cells, n.Particles, n.Tokens); err != nil {
		return fmt.Errorf("update data: %w", err)
	}

	region := f.affectedRegion()
	corrected := correctBoundary(f.space, change)
	h, buf := f.pool.Acquire()
	f.schedule(job.NewFetchForUpdate(f.origin, region, h, buf, corrected))
	return nil
}

// RequireImage renders region into target. The region is clamped to the world
// origin and sized to the target. ImageReady is emitted when the image is written.
func (f *Facade) RequireImage(region geometry.Rect, target *render.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(); err != nil {
		return err
	}
	f.schedule(job.NewFetchImage(f.origin, region, target))
	return nil
}

// ApplyAction applies a drag. It is not held back by an update in progress.
func (f *Facade) ApplyAction(a kernel.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(); err != nil {
		return err
	}
	f.worker.Submit(job.NewApplyUserAction(f.origin, a))
	return nil
}

// Clear discards the whole world.
func (f *Facade) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable(); err != nil {
		return err
	}
	f.schedule(job.NewClear(f.origin))
	return nil
}

// SetSimulationParameters sets the defaults used for entities added by UpdateData.
func (f *Facade) SetSimulationParameters(p config.SimulationParameters) {
	f.mu.Lock()
	f.params = p
	f.mu.Unlock()
}

// RetrieveData returns a copy of the data of the last completed RequireData.
func (f *Facade) RetrieveData() description.Data {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Clone()
}

// Stats returns the current bookkeeping.
func (f *Facade) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Pool:             f.pool.Stats(),
		UpdateInProgress: f.updateInProgress,
		Waiting:          len(f.waiting),
		Failed:           f.failed != nil,
	}
}

// Close stops the completion goroutine and frees every transfer buffer.
// Jobs still queued at the worker may complete unobserved.
func (f *Facade) Close() {
	f.closeOnce.Do(func() {
		close(f.stop)
		<-f.done
		f.mu.Lock()
		f.closed = true
		f.pool.Close()
		f.mu.Unlock()
	})
}

// usable reports why the facade can no longer take requests, if it cannot.
// Callers hold f.mu.
func (f *Facade) usable() error {
	if f.closed {
		return ErrClosed
	}
	return f.failed
}

// affectedRegion is the region an update fetches and writes back. While the
// simulation runs, anything may have moved anywhere, so the whole world is used.
// Otherwise the last fetched region is assumed to contain everything the editor
// changed. Entities that moved out of it since the fetch would be missed, which
// ConservativeRegion rules out.
func (f *Facade) affectedRegion() geometry.Rect {
	if f.cfg.ConservativeRegion || !f.hasLastRegion || f.worker.IsSimulationRunning() {
		return f.space.World()
	}
	return f.lastRegion
}

// schedule submits j, or holds it back while an update is in progress.
// Callers hold f.mu.
func (f *Facade) schedule(j job.Job) {
	if f.updateInProgress {
		f.waiting = append(f.waiting, j)
		return
	}
	f.submit(j)
}

func (f *Facade) submit(j job.Job) {
	if _, ok := j.(*job.FetchForUpdate); ok {
		f.updateInProgress = true
	}
	f.worker.Submit(j)
}

// endUpdate lifts the barrier and submits held-back jobs in order, up to and
// including the next update, which raises the barrier again.
// Callers hold f.mu.
func (f *Facade) endUpdate() {
	f.updateInProgress = false
	for len(f.waiting) > 0 && !f.updateInProgress {
		j := f.waiting[0]
		f.waiting = f.waiting[1:]
		f.submit(j)
	}
	if len(f.waiting) == 0 {
		f.waiting = nil
	}
}
