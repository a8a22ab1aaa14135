// Package monitor requests aggregate world statistics from the worker.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pthm-cable/clusters/job"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/telemetry"
)

// Origin is the origin of monitor jobs.
const Origin job.Origin = "monitor"

// Worker is the part of the job worker the monitor depends on.
type Worker interface {
	Submit(j job.Job)
	Subscribe(origin job.Origin) <-chan struct{}
	DrainFinished(origin job.Origin) []job.Job
}

// Monitor caches the most recent statistics.
type Monitor struct {
	worker Worker
	logger *slog.Logger
	output *telemetry.OutputManager
	start  time.Time

	mu      sync.Mutex
	stats   kernel.Stats
	last    *telemetry.StatsRecord
	updates chan kernel.Stats

	notify    <-chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithOutput appends every received sample to the stats CSV of om.
func WithOutput(om *telemetry.OutputManager) Option {
	return func(m *Monitor) { m.output = om }
}

// New creates a monitor and starts its completion goroutine.
func New(w Worker, opts ...Option) *Monitor {
	m := &Monitor{
		worker:  w,
		logger:  slog.Default(),
		start:   time.Now(),
		updates: make(chan kernel.Stats, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notify = w.Subscribe(Origin)
	go m.run()
	return m
}

// RequireStats requests a fresh sample. Updates receives it when it arrives.
func (m *Monitor) RequireStats() {
	m.worker.Submit(job.NewFetchMonitorStats(Origin))
}

// RetrieveStats returns the most recent sample.
func (m *Monitor) RetrieveStats() kernel.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Updates delivers new samples. Only the latest unread sample is kept.
func (m *Monitor) Updates() <-chan kernel.Stats {
	return m.updates
}

// Close stops the completion goroutine.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

func (m *Monitor) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case <-m.notify:
			for _, j := range m.worker.DrainFinished(Origin) {
				fetch, ok := j.(*job.FetchMonitorStats)
				if !ok {
					panic(fmt.Sprintf("monitor: unexpected job type %T", j))
				}
				m.received(fetch.Stats)
			}
		}
	}
}

func (m *Monitor) received(s kernel.Stats) {
	m.mu.Lock()
	m.stats = s
	record := telemetry.NewStatsRecord(s, time.Since(m.start), m.last)
	m.last = &record
	m.mu.Unlock()

	if err := m.output.WriteStats(record); err != nil {
		m.logger.Error("failed to write stats", "error", err)
	}

	// Replace an unread sample with the newer one.
	select {
	case <-m.updates:
	default:
	}
	select {
	case m.updates <- s:
	default:
	}
}
