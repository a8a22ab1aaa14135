// Package worker executes jobs against the kernel and drives the simulation loop.
package worker

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/job"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/telemetry"
)

// Worker owns the kernel. Jobs run on its goroutine in submission order, interleaved
// with simulation steps while the simulation is running. Finished jobs that requested
// notification are kept per origin until drained.
type Worker struct {
	kernel kernel.Kernel
	logger *slog.Logger
	perf   *telemetry.PerfCollector

	mu       sync.Mutex
	pending  []job.Job
	finished map[job.Origin][]job.Job
	subs     map[job.Origin]chan struct{}

	wake   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc

	running  atomic.Bool
	timestep atomic.Uint64

	// Owned by the loop goroutine.
	exec     config.ExecutionParameters
	rate     int
	limited  bool
	stepOnce bool
	lastStep time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithPerf sets the collector that times jobs and steps.
func WithPerf(p *telemetry.PerfCollector) Option {
	return func(w *Worker) { w.perf = p }
}

// WithRate limits the loop to tps timesteps per second. tps <= 0 means unlimited.
func WithRate(tps int) Option {
	return func(w *Worker) { w.rate, w.limited = tps, tps > 0 }
}

// WithExecutionParameters sets the initial loop parameters.
func WithExecutionParameters(p config.ExecutionParameters) Option {
	return func(w *Worker) { w.exec = p }
}

// New creates a worker for k. Call Start to run it.
func New(k kernel.Kernel, opts ...Option) *Worker {
	w := &Worker{
		kernel:   k,
		logger:   slog.Default(),
		finished: make(map[job.Origin][]job.Job),
		subs:     make(map[job.Origin]chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exec:     config.ExecutionParameters{StepsPerIteration: 1},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.perf == nil {
		w.perf = telemetry.NewPerfCollector(120)
	}
	if w.exec.StepsPerIteration < 1 {
		w.exec.StepsPerIteration = 1
	}
	return w
}

// Start runs the loop until ctx is done or Close is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
}

// Close stops the loop between jobs and waits for it to exit.
// Jobs still pending are dropped.
func (w *Worker) Close() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Submit queues j. It never blocks.
func (w *Worker) Submit(j job.Job) {
	w.mu.Lock()
	w.pending = append(w.pending, j)
	w.mu.Unlock()
	w.signal()
}

// Subscribe returns the notification channel of origin. A value is sent whenever
// jobs of origin finish; several completions may coalesce into one value.
func (w *Worker) Subscribe(origin job.Origin) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.subscription(origin)
}

func (w *Worker) subscription(origin job.Origin) chan struct{} {
	ch, ok := w.subs[origin]
	if !ok {
		ch = make(chan struct{}, 1)
		w.subs[origin] = ch
	}
	return ch
}

// DrainFinished returns the finished jobs of origin in completion order and forgets them.
func (w *Worker) DrainFinished(origin job.Origin) []job.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	jobs := w.finished[origin]
	delete(w.finished, origin)
	return jobs
}

// IsSimulationRunning reports whether the loop is stepping continuously.
func (w *Worker) IsSimulationRunning() bool {
	return w.running.Load()
}

// Timestep returns the number of steps since start or the last Clear.
func (w *Worker) Timestep() uint64 {
	return w.timestep.Load()
}

// Perf returns the collector timing jobs and steps.
func (w *Worker) Perf() *telemetry.PerfCollector {
	return w.perf
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	w.logger.Debug("worker started")

	for {
		w.mu.Lock()
		jobs := w.pending
		w.pending = nil
		w.mu.Unlock()

		w.perf.StartTick()
		for _, j := range jobs {
			if ctx.Err() != nil {
				w.logger.Debug("worker stopped", "dropped_jobs", len(jobs))
				return
			}
			w.execute(j)
		}

		delay, step := w.nextStep(time.Now())
		if step {
			w.step()
		}
		if step || len(jobs) > 0 {
			w.perf.EndTick()
		}

		if w.running.Load() && delay == 0 {
			select {
			case <-ctx.Done():
				w.logger.Debug("worker stopped")
				return
			default:
				continue
			}
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if w.running.Load() {
			timer = time.NewTimer(delay)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			w.logger.Debug("worker stopped")
			return
		case <-w.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// nextStep reports whether to step now, and otherwise how long until the next step is due.
func (w *Worker) nextStep(now time.Time) (time.Duration, bool) {
	if w.stepOnce {
		w.stepOnce = false
		return 0, true
	}
	if !w.running.Load() {
		return 0, false
	}
	if !w.limited || w.lastStep.IsZero() {
		return 0, true
	}
	interval := time.Duration(w.exec.StepsPerIteration) * time.Second / time.Duration(w.rate)
	if due := w.lastStep.Add(interval); now.Before(due) {
		return due.Sub(now), false
	}
	return 0, true
}

func (w *Worker) step() {
	w.perf.StartPhase(telemetry.PhaseStep)
	for i := 0; i < w.exec.StepsPerIteration; i++ {
		w.kernel.Step()
		w.timestep.Add(1)
	}
	w.lastStep = time.Now()
}

func (w *Worker) execute(j job.Job) {
	w.perf.StartPhase(j.Kind().String())

	var err error
	switch v := j.(type) {
	case *job.Clear:
		w.kernel.Clear()
		w.timestep.Store(0)
	case *job.FetchForEdit:
		err = w.kernel.Extract(v.Region, v.Buffer)
	case *job.FetchForUpdate:
		err = w.kernel.Extract(v.Region, v.Buffer)
	case *job.WriteBack:
		err = w.kernel.Install(v.Region, v.Buffer)
	case *job.FetchMonitorStats:
		v.Stats = w.kernel.Stats()
	case *job.FetchImage:
		v.Target.Write(func(img *image.RGBA) {
			w.kernel.Render(v.Region, img)
		})
	case *job.Run:
		w.running.Store(true)
	case *job.Stop:
		w.running.Store(false)
	case *job.SingleStep:
		if !w.running.Load() {
			w.stepOnce = true
		}
	case *job.RestrictRate:
		w.rate, w.limited = v.Rate, v.Limited && v.Rate > 0
	case *job.SetSimulationParameters:
		w.kernel.SetSimulationParameters(v.Params)
	case *job.SetExecutionParameters:
		w.exec = v.Params
		if w.exec.StepsPerIteration < 1 {
			w.exec.StepsPerIteration = 1
		}
		w.kernel.SetExecutionParameters(w.exec)
	case *job.ApplyUserAction:
		w.kernel.ApplyAction(v.Action)
	default:
		panic(fmt.Sprintf("worker: unhandled job type %T", j))
	}

	if err != nil {
		j.Fail(err)
		w.logger.Error("job failed",
			"job", j.ID(),
			"kind", j.Kind().String(),
			"origin", j.Origin(),
			"error", err,
		)
	}
	if j.NotifyFinish() {
		w.finish(j)
	}
}

func (w *Worker) finish(j job.Job) {
	w.mu.Lock()
	w.finished[j.Origin()] = append(w.finished[j.Origin()], j)
	ch := w.subscription(j.Origin())
	w.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
}
