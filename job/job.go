// Package job defines the closed set of work items executed by the simulation worker.
//
// Job is a sealed interface: only the variants declared here implement it, and every
// consumer dispatches with an exhaustive type switch. Adding a variant means extending
// Kind and every switch.
package job

import (
	"sync/atomic"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/render"
	"github.com/pthm-cable/clusters/transfer"
)

// Origin identifies the submitter that receives a job's completion.
type Origin string

// Kind identifies a job variant.
type Kind uint8

// Job kinds, one per variant.
const (
	KindClear                   Kind = iota // discard the world
	KindFetchForEdit                        // extract a region for reading
	KindFetchForUpdate                      // extract a region to merge a change into
	KindWriteBack                           // install a merged buffer
	KindFetchMonitorStats                   // read aggregate statistics
	KindFetchImage                          // render a region
	KindRun                                 // start the loop
	KindStop                                // stop the loop
	KindSingleStep                          // advance a stopped loop once
	KindRestrictRate                        // limit timesteps per second
	KindSetSimulationParameters             // replace physics parameters
	KindSetExecutionParameters              // replace loop parameters
	KindApplyUserAction                     // apply a drag
)

var kindNames = [...]string{
	"clear",
	"fetch_for_edit",
	"fetch_for_update",
	"write_back",
	"fetch_monitor_stats",
	"fetch_image",
	"run",
	"stop",
	"single_step",
	"restrict_rate",
	"set_simulation_parameters",
	"set_execution_parameters",
	"apply_user_action",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Job is a unit of work with an origin and a completion flag.
type Job interface {
	// ID is unique per process and increases with creation order.
	ID() uint64
	Origin() Origin
	// NotifyFinish reports whether the origin is notified and the job
	// delivered through DrainFinished once executed.
	NotifyFinish() bool
	Kind() Kind
	// Err is the execution error, set by the worker.
	Err() error
	// Fail records an execution error.
	Fail(err error)

	sealed()
}

var lastID atomic.Uint64

type base struct {
	id     uint64
	origin Origin
	notify bool
	err    error
}

func newBase(origin Origin, notify bool) base {
	return base{id: lastID.Add(1), origin: origin, notify: notify}
}

func (b *base) ID() uint64         { return b.id }
func (b *base) Origin() Origin     { return b.origin }
func (b *base) NotifyFinish() bool { return b.notify }
func (b *base) Err() error         { return b.err }
func (b *base) Fail(err error)     { b.err = err }
func (b *base) sealed()            {}

// Clear discards all world state.
type Clear struct{ base }

// NewClear returns a Clear job. It never notifies.
func NewClear(origin Origin) *Clear {
	return &Clear{base: newBase(origin, false)}
}

func (*Clear) Kind() Kind { return KindClear }

// FetchForEdit extracts Region into Buffer.
type FetchForEdit struct {
	base
	Region geometry.Rect
	Handle transfer.Handle
	Buffer *transfer.Buffer
}

// NewFetchForEdit returns a notifying fetch of region into buf.
func NewFetchForEdit(origin Origin, region geometry.Rect, h transfer.Handle, buf *transfer.Buffer) *FetchForEdit {
	return &FetchForEdit{base: newBase(origin, true), Region: region, Handle: h, Buffer: buf}
}

func (*FetchForEdit) Kind() Kind { return KindFetchForEdit }

// FetchForUpdate extracts Region into Buffer; the origin then merges Change into it.
type FetchForUpdate struct {
	base
	Region geometry.Rect
	Handle transfer.Handle
	Buffer *transfer.Buffer
	Change description.DataChange
}

// NewFetchForUpdate returns a notifying fetch of region into buf that carries change.
func NewFetchForUpdate(origin Origin, region geometry.Rect, h transfer.Handle, buf *transfer.Buffer, change description.DataChange) *FetchForUpdate {
	return &FetchForUpdate{base: newBase(origin, true), Region: region, Handle: h, Buffer: buf, Change: change}
}

func (*FetchForUpdate) Kind() Kind { return KindFetchForUpdate }

// WriteBack installs Buffer into the world, replacing Region.
type WriteBack struct {
	base
	Region geometry.Rect
	Handle transfer.Handle
	Buffer *transfer.Buffer
}

// NewWriteBack returns a job installing buf over region.
func NewWriteBack(origin Origin, region geometry.Rect, h transfer.Handle, buf *transfer.Buffer, notify bool) *WriteBack {
	return &WriteBack{base: newBase(origin, notify), Region: region, Handle: h, Buffer: buf}
}

func (*WriteBack) Kind() Kind { return KindWriteBack }

// FetchMonitorStats reads aggregate statistics into Stats.
type FetchMonitorStats struct {
	base
	Stats kernel.Stats
}

// NewFetchMonitorStats returns a notifying stats fetch.
func NewFetchMonitorStats(origin Origin) *FetchMonitorStats {
	return &FetchMonitorStats{base: newBase(origin, true)}
}

func (*FetchMonitorStats) Kind() Kind { return KindFetchMonitorStats }

// FetchImage renders Region into Target.
type FetchImage struct {
	base
	Region geometry.Rect
	Target *render.Target
}

// NewFetchImage clamps the upper-left corner of region to the world origin and sizes
// the region to the target image.
func NewFetchImage(origin Origin, region geometry.Rect, target *render.Target) *FetchImage {
	b := target.Bounds()
	p1 := geometry.IntVec{X: max(region.P1.X, 0), Y: max(region.P1.Y, 0)}
	clamped := geometry.Rect{
		P1: p1,
		P2: geometry.IntVec{X: p1.X + b.Dx() - 1, Y: p1.Y + b.Dy() - 1},
	}
	return &FetchImage{base: newBase(origin, true), Region: clamped, Target: target}
}

func (*FetchImage) Kind() Kind { return KindFetchImage }

// Run starts the simulation loop.
type Run struct{ base }

// NewRun returns a Run job.
func NewRun(origin Origin, notify bool) *Run {
	return &Run{base: newBase(origin, notify)}
}

func (*Run) Kind() Kind { return KindRun }

// Stop halts the simulation loop after the current iteration.
type Stop struct{ base }

// NewStop returns a Stop job.
func NewStop(origin Origin, notify bool) *Stop {
	return &Stop{base: newBase(origin, notify)}
}

func (*Stop) Kind() Kind { return KindStop }

// SingleStep advances a stopped simulation by one iteration.
type SingleStep struct{ base }

// NewSingleStep returns a SingleStep job.
func NewSingleStep(origin Origin, notify bool) *SingleStep {
	return &SingleStep{base: newBase(origin, notify)}
}

func (*SingleStep) Kind() Kind { return KindSingleStep }

// RestrictRate limits the loop to Rate timesteps per second; Limited false lifts the limit.
type RestrictRate struct {
	base
	Rate    int
	Limited bool
}

// NewRestrictRate returns a RestrictRate job. It never notifies.
func NewRestrictRate(origin Origin, rate int, limited bool) *RestrictRate {
	return &RestrictRate{base: newBase(origin, false), Rate: rate, Limited: limited}
}

func (*RestrictRate) Kind() Kind { return KindRestrictRate }

// SetSimulationParameters replaces the physics parameters.
type SetSimulationParameters struct {
	base
	Params config.SimulationParameters
}

// NewSetSimulationParameters returns a job replacing the physics parameters with p.
func NewSetSimulationParameters(origin Origin, p config.SimulationParameters) *SetSimulationParameters {
	return &SetSimulationParameters{base: newBase(origin, false), Params: p}
}

func (*SetSimulationParameters) Kind() Kind { return KindSetSimulationParameters }

// SetExecutionParameters replaces the loop parameters.
type SetExecutionParameters struct {
	base
	Params config.ExecutionParameters
}

// NewSetExecutionParameters returns a job replacing the loop parameters with p.
func NewSetExecutionParameters(origin Origin, p config.ExecutionParameters) *SetExecutionParameters {
	return &SetExecutionParameters{base: newBase(origin, false), Params: p}
}

func (*SetExecutionParameters) Kind() Kind { return KindSetExecutionParameters }

// ApplyUserAction applies a drag to the world. Fire and forget.
type ApplyUserAction struct {
	base
	Action kernel.Action
}

// NewApplyUserAction returns a job applying a. It never notifies.
func NewApplyUserAction(origin Origin, a kernel.Action) *ApplyUserAction {
	return &ApplyUserAction{base: newBase(origin, false), Action: a}
}

func (*ApplyUserAction) Kind() Kind { return KindApplyUserAction }
