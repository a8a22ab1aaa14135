// Package control submits simulation control jobs.
package control

import (
	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/job"
)

// Origin is the origin of control jobs.
const Origin job.Origin = "control"

// Submitter queues jobs for execution.
type Submitter interface {
	Submit(j job.Job)
}

// ParameterListener keeps its own copy of the simulation parameters,
// such as an access facade using them as defaults for added cells.
type ParameterListener interface {
	SetSimulationParameters(p config.SimulationParameters)
}

// Controller runs, stops and parameterizes the simulation loop.
// None of its jobs notify on completion.
type Controller struct {
	worker    Submitter
	listeners []ParameterListener
}

// Option configures a Controller.
type Option func(*Controller)

// WithParameterListeners registers listeners updated by SetSimulationParameters.
func WithParameterListeners(l ...ParameterListener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l...) }
}

// New creates a controller submitting to w.
func New(w Submitter, opts ...Option) *Controller {
	c := &Controller{worker: w}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts continuous stepping.
func (c *Controller) Run() { c.worker.Submit(job.NewRun(Origin, false)) }

// Stop halts stepping after the current iteration.
func (c *Controller) Stop() { c.worker.Submit(job.NewStop(Origin, false)) }

// Step advances a stopped simulation by one iteration.
func (c *Controller) Step() { c.worker.Submit(job.NewSingleStep(Origin, false)) }

// RestrictRate limits the loop to tps timesteps per second. tps <= 0 lifts the limit.
func (c *Controller) RestrictRate(tps int) {
	c.worker.Submit(job.NewRestrictRate(Origin, tps, tps > 0))
}

// SetSimulationParameters updates the kernel and every registered listener.
func (c *Controller) SetSimulationParameters(p config.SimulationParameters) {
	c.worker.Submit(job.NewSetSimulationParameters(Origin, p))
	for _, l := range c.listeners {
		l.SetSimulationParameters(p)
	}
}

// SetExecutionParameters updates the simulation loop settings.
func (c *Controller) SetExecutionParameters(p config.ExecutionParameters) {
	c.worker.Submit(job.NewSetExecutionParameters(Origin, p))
}

// Clear discards the whole world. Access facades are not notified; their cached
// data goes stale.
func (c *Controller) Clear() { c.worker.Submit(job.NewClear(Origin)) }
