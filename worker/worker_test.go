package worker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/job"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/render"
	"github.com/pthm-cable/clusters/transfer"
)

// fakeKernel records calls instead of simulating.
type fakeKernel struct {
	mu         sync.Mutex
	calls      []string
	steps      int
	installErr error
	params     config.SimulationParameters
}

func (k *fakeKernel) record(call string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, call)
}

func (k *fakeKernel) Clear() { k.record("clear") }
func (k *fakeKernel) Extract(geometry.Rect, *transfer.Buffer) error {
	k.record("extract")
	return nil
}
func (k *fakeKernel) Install(geometry.Rect, *transfer.Buffer) error {
	k.record("install")
	return k.installErr
}
func (k *fakeKernel) Step() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.steps++
}
func (k *fakeKernel) Render(_ geometry.Rect, img *image.RGBA) {
	k.record("render")
	img.SetRGBA(0, 0, color.RGBA{R: 1, A: 255})
}
func (k *fakeKernel) Stats() kernel.Stats {
	k.record("stats")
	return kernel.Stats{Cells: 42}
}
func (k *fakeKernel) ApplyAction(kernel.Action) { k.record("action") }
func (k *fakeKernel) SetSimulationParameters(p config.SimulationParameters) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.params = p
	k.calls = append(k.calls, "sim_params")
}
func (k *fakeKernel) SetExecutionParameters(config.ExecutionParameters) { k.record("exec_params") }

func (k *fakeKernel) Calls() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.calls...)
}

func (k *fakeKernel) Steps() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.steps
}

func start(t *testing.T, k kernel.Kernel, opts ...Option) *Worker {
	t.Helper()
	w := New(k, opts...)
	w.Start(context.Background())
	t.Cleanup(w.Close)
	return w
}

// drain collects n finished jobs of origin.
func drain(t *testing.T, w *Worker, origin job.Origin, n int) []job.Job {
	t.Helper()
	ch := w.Subscribe(origin)
	var out []job.Job
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case <-ch:
			out = append(out, w.DrainFinished(origin)...)
		case <-deadline:
			t.Fatalf("got %d finished jobs, want %d", len(out), n)
		}
	}
	return out
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	k := &fakeKernel{}
	w := start(t, k)
	region := geometry.Rect{P2: geometry.IntVec{X: 9, Y: 9}}

	jobs := []job.Job{
		job.NewClear("a"),
		job.NewFetchForEdit("a", region, 0, nil),
		job.NewWriteBack("a", region, 0, nil, true),
		job.NewApplyUserAction("a", kernel.Action{}),
		job.NewFetchMonitorStats("a"),
	}
	for _, j := range jobs {
		w.Submit(j)
	}

	finished := drain(t, w, "a", 3)
	wantFinished := []job.Job{jobs[1], jobs[2], jobs[4]}
	for i, j := range finished {
		if j != wantFinished[i] {
			t.Errorf("finished[%d] = %v, want %v", i, j.Kind(), wantFinished[i].Kind())
		}
	}

	wantCalls := []string{"clear", "extract", "install", "action", "stats"}
	calls := k.Calls()
	if len(calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", calls, wantCalls)
	}
	for i := range calls {
		if calls[i] != wantCalls[i] {
			t.Errorf("calls = %v, want %v", calls, wantCalls)
			break
		}
	}
	if got := jobs[4].(*job.FetchMonitorStats).Stats.Cells; got != 42 {
		t.Errorf("stats cells = %d, want 42", got)
	}
}

func TestDrainIsAtMostOnceAndPerOrigin(t *testing.T) {
	w := start(t, &fakeKernel{})
	w.Submit(job.NewFetchMonitorStats("a"))
	w.Submit(job.NewFetchMonitorStats("b"))

	if got := drain(t, w, "a", 1); len(got) != 1 || got[0].Origin() != "a" {
		t.Fatalf("origin a drained %v", got)
	}
	if got := w.DrainFinished("a"); len(got) != 0 {
		t.Errorf("second drain returned %d jobs", len(got))
	}
	if got := drain(t, w, "b", 1); len(got) != 1 || got[0].Origin() != "b" {
		t.Errorf("origin b drained %v", got)
	}
}

func TestFailureIsRecorded(t *testing.T) {
	errInstall := errors.New("install failed")
	w := start(t, &fakeKernel{installErr: errInstall})
	wb := job.NewWriteBack("a", geometry.Rect{}, 0, nil, true)
	w.Submit(wb)

	drain(t, w, "a", 1)
	if !errors.Is(wb.Err(), errInstall) {
		t.Errorf("Err() = %v, want %v", wb.Err(), errInstall)
	}
}

func TestRunStop(t *testing.T) {
	k := &fakeKernel{}
	w := start(t, k)

	w.Submit(job.NewRun("c", false))
	eventually(t, func() bool { return k.Steps() > 10 }, "simulation did not run")
	if !w.IsSimulationRunning() {
		t.Error("IsSimulationRunning() = false while running")
	}

	w.Submit(job.NewStop("c", true))
	drain(t, w, "c", 1)
	stopped := k.Steps()
	time.Sleep(20 * time.Millisecond)
	if got := k.Steps(); got != stopped {
		t.Errorf("steps advanced from %d to %d after stop", stopped, got)
	}
	if w.IsSimulationRunning() {
		t.Error("IsSimulationRunning() = true after stop")
	}
	if w.Timestep() != uint64(stopped) {
		t.Errorf("Timestep() = %d, want %d", w.Timestep(), stopped)
	}
}

func TestSingleStep(t *testing.T) {
	tests := []struct {
		name  string
		steps int
	}{
		{"one step per iteration", 1},
		{"several steps per iteration", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &fakeKernel{}
			w := start(t, k, WithExecutionParameters(config.ExecutionParameters{StepsPerIteration: tt.steps}))

			w.Submit(job.NewSingleStep("c", false))
			eventually(t, func() bool { return k.Steps() == tt.steps }, "single step did not run")
			time.Sleep(20 * time.Millisecond)
			if got := k.Steps(); got != tt.steps {
				t.Errorf("steps = %d, want %d", got, tt.steps)
			}
		})
	}
}

func TestRestrictRate(t *testing.T) {
	k := &fakeKernel{}
	w := start(t, k)

	w.Submit(job.NewRestrictRate("c", 20, true))
	w.Submit(job.NewRun("c", false))
	time.Sleep(300 * time.Millisecond)

	// 20 steps per second for 0.3s, plus the first immediate step.
	if got := k.Steps(); got < 2 || got > 12 {
		t.Errorf("steps = %d, want about 7", got)
	}

	w.Submit(job.NewRestrictRate("c", 0, false))
	eventually(t, func() bool { return k.Steps() > 100 }, "rate restriction was not lifted")
}

func TestFetchImageWritesTarget(t *testing.T) {
	w := start(t, &fakeKernel{})
	target := render.NewTarget(4, 4)
	w.Submit(job.NewFetchImage("r", geometry.Rect{}, target))

	drain(t, w, "r", 1)
	var px color.RGBA
	target.Read(func(img *image.RGBA) { px = img.RGBAAt(0, 0) })
	if px.R != 1 {
		t.Errorf("pixel = %v, want rendered", px)
	}
}

func TestParametersReachKernel(t *testing.T) {
	k := &fakeKernel{}
	w := start(t, k)
	params := config.SimulationParameters{CellMinDistance: 0.5}
	w.Submit(job.NewSetSimulationParameters("c", params))
	w.Submit(job.NewFetchMonitorStats("c"))

	drain(t, w, "c", 1)
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.params != params {
		t.Errorf("params = %+v, want %+v", k.params, params)
	}
}

func TestCloseStopsLoop(t *testing.T) {
	k := &fakeKernel{}
	w := New(k)
	w.Start(context.Background())
	w.Submit(job.NewRun("c", false))
	eventually(t, func() bool { return k.Steps() > 0 }, "simulation did not run")

	w.Close()
	steps := k.Steps()
	time.Sleep(10 * time.Millisecond)
	if got := k.Steps(); got != steps {
		t.Errorf("steps advanced after close: %d -> %d", steps, got)
	}
	w.Close() // idempotent
}

func TestFetchForUpdateCarriesChange(t *testing.T) {
	w := start(t, &fakeKernel{})
	change := description.DataChange{Particles: []description.ParticleChange{{ID: 5, State: description.Deleted}}}
	j := job.NewFetchForUpdate("a", geometry.Rect{}, 3, nil, change)
	w.Submit(j)

	got := drain(t, w, "a", 1)[0].(*job.FetchForUpdate)
	if got.Handle != 3 || len(got.Change.Particles) != 1 || got.Err() != nil {
		t.Errorf("finished job = %+v", got)
	}
}
