package access

import (
	"fmt"

	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/job"
	"github.com/pthm-cable/clusters/render"
)

// EventKind identifies an Event.
type EventKind uint8

const (
	// DataUpdated: an update has been merged and its write-back submitted.
	DataUpdated EventKind = iota
	// ImageReady: the target of a RequireImage has been written.
	ImageReady
	// DataReady: RetrieveData returns the data of a completed RequireData.
	DataReady
	// Error: a request failed. Err holds the cause.
	Error
)

func (k EventKind) String() string {
	switch k {
	case DataUpdated:
		return "data_updated"
	case ImageReady:
		return "image_ready"
	case DataReady:
		return "data_ready"
	case Error:
		return "error"
	}
	return "unknown"
}

// Event reports the result of a request.
type Event struct {
	Kind   EventKind
	Region geometry.Rect
	Target *render.Target // ImageReady only
	Err    error          // Error only
}

func (f *Facade) run() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case <-f.notify:
			for _, j := range f.worker.DrainFinished(f.origin) {
				f.complete(j)
			}
		}
	}
}

func (f *Facade) complete(j job.Job) {
	switch v := j.(type) {
	case *job.FetchForEdit:
		f.fetchedForEdit(v)
	case *job.FetchForUpdate:
		f.fetchedForUpdate(v)
	case *job.WriteBack:
		f.wroteBack(v)
	case *job.FetchImage:
		if err := v.Err(); err != nil {
			f.emit(Event{Kind: Error, Region: v.Region, Err: err})
			return
		}
		f.emit(Event{Kind: ImageReady, Region: v.Region, Target: v.Target})
	case *job.Clear, *job.FetchMonitorStats, *job.Run, *job.Stop, *job.SingleStep,
		*job.RestrictRate, *job.SetSimulationParameters, *job.SetExecutionParameters,
		*job.ApplyUserAction:
		f.logger.Warn("unexpected finished job", "job", j.ID(), "kind", j.Kind().String())
	default:
		panic(fmt.Sprintf("access: unhandled job type %T", j))
	}
}

func (f *Facade) fetchedForEdit(j *job.FetchForEdit) {
	if err := j.Err(); err != nil {
		f.pool.Release(j.Handle)
		f.emit(Event{Kind: Error, Region: j.Region, Err: fmt.Errorf("fetch for edit: %w", err)})
		return
	}
	data := f.conv.ToDescription(j.Buffer)

	f.mu.Lock()
	f.data = data
	f.lastRegion = j.Region
	f.hasLastRegion = true
	f.mu.Unlock()

	f.pool.Release(j.Handle)
	f.emit(Event{Kind: DataReady, Region: j.Region})
}

func (f *Facade) fetchedForUpdate(j *job.FetchForUpdate) {
	// The fetch left the world untouched, so a failed fetch only rejects the update.
	if err := j.Err(); err != nil {
		f.rejectUpdate(j, fmt.Errorf("fetch for update: %w", err))
		return
	}

	f.mu.Lock()
	params := f.params
	f.mu.Unlock()

	if err := f.conv.ApplyChange(j.Buffer, j.Change, f.rng, params); err != nil {
		f.rejectUpdate(j, fmt.Errorf("apply change: %w", err))
		return
	}

	// The write-back belongs to the update in progress and bypasses the barrier.
	f.worker.Submit(job.NewWriteBack(f.origin, j.Region, j.Handle, j.Buffer, true))
	f.emit(Event{Kind: DataUpdated, Region: j.Region})
}

func (f *Facade) rejectUpdate(j *job.FetchForUpdate, err error) {
	f.pool.Release(j.Handle)
	f.mu.Lock()
	f.endUpdate()
	f.mu.Unlock()
	f.logger.Warn("update rejected", "job", j.ID(), "error", err)
	f.emit(Event{Kind: Error, Region: j.Region, Err: err})
}

func (f *Facade) wroteBack(j *job.WriteBack) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.updateInProgress {
		panic(ErrBarrierViolation)
	}
	f.pool.Release(j.Handle)
	if err := j.Err(); err != nil {
		f.failLocked(fmt.Errorf("write back: %w", err))
		return
	}
	f.endUpdate()
}

// failLocked makes the session fatal. The update barrier stays up and held-back
// jobs are discarded, releasing their buffers.
func (f *Facade) failLocked(err error) {
	f.failed = fmt.Errorf("%w: %w", ErrSessionFailed, err)
	for _, j := range f.waiting {
		switch v := j.(type) {
		case *job.FetchForEdit:
			f.pool.Release(v.Handle)
		case *job.FetchForUpdate:
			f.pool.Release(v.Handle)
		}
	}
	f.waiting = nil
	f.logger.Error("access session failed", "error", err)
	f.emit(Event{Kind: Error, Err: f.failed})
}

func (f *Facade) emit(e Event) {
	select {
	case f.events <- e:
	default:
		f.logger.Warn("event dropped", "kind", e.Kind.String())
	}
}
