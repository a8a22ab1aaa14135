package job

import (
	"errors"
	"testing"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/render"
)

const origin Origin = "test"

func TestVariants(t *testing.T) {
	region := geometry.Rect{P2: geometry.IntVec{X: 9, Y: 9}}
	target := render.NewTarget(4, 4)

	tests := []struct {
		job    Job
		kind   Kind
		name   string
		notify bool
	}{
		{NewClear(origin), KindClear, "clear", false},
		{NewFetchForEdit(origin, region, 0, nil), KindFetchForEdit, "fetch_for_edit", true},
		{NewFetchForUpdate(origin, region, 0, nil, description.DataChange{}), KindFetchForUpdate, "fetch_for_update", true},
		{NewWriteBack(origin, region, 0, nil, true), KindWriteBack, "write_back", true},
		{NewWriteBack(origin, region, 0, nil, false), KindWriteBack, "write_back", false},
		{NewFetchMonitorStats(origin), KindFetchMonitorStats, "fetch_monitor_stats", true},
		{NewFetchImage(origin, region, target), KindFetchImage, "fetch_image", true},
		{NewRun(origin, false), KindRun, "run", false},
		{NewStop(origin, true), KindStop, "stop", true},
		{NewSingleStep(origin, false), KindSingleStep, "single_step", false},
		{NewRestrictRate(origin, 30, true), KindRestrictRate, "restrict_rate", false},
		{NewSetSimulationParameters(origin, config.SimulationParameters{}), KindSetSimulationParameters, "set_simulation_parameters", false},
		{NewSetExecutionParameters(origin, config.ExecutionParameters{}), KindSetExecutionParameters, "set_execution_parameters", false},
		{NewApplyUserAction(origin, kernel.Action{}), KindApplyUserAction, "apply_user_action", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.job.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", tt.job.Kind(), tt.kind)
			}
			if tt.job.Kind().String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.job.Kind().String(), tt.name)
			}
			if tt.job.NotifyFinish() != tt.notify {
				t.Errorf("NotifyFinish() = %v, want %v", tt.job.NotifyFinish(), tt.notify)
			}
			if tt.job.Origin() != origin {
				t.Errorf("Origin() = %q", tt.job.Origin())
			}
			if tt.job.Err() != nil {
				t.Errorf("new job has error %v", tt.job.Err())
			}
		})
	}

	if got := Kind(200).String(); got != "unknown" {
		t.Errorf("unknown kind String() = %q", got)
	}
}

func TestIDsIncrease(t *testing.T) {
	a, b := NewClear(origin), NewRun(origin, false)
	if b.ID() <= a.ID() {
		t.Errorf("ids %d, %d not increasing", a.ID(), b.ID())
	}
}

func TestFail(t *testing.T) {
	j := NewClear(origin)
	errBoom := errors.New("boom")
	j.Fail(errBoom)
	if !errors.Is(j.Err(), errBoom) {
		t.Errorf("Err() = %v, want %v", j.Err(), errBoom)
	}
}

func TestFetchImageClampsRegion(t *testing.T) {
	target := render.NewTarget(20, 10)
	tests := []struct {
		name   string
		region geometry.Rect
		want   geometry.Rect
	}{
		{
			"inside",
			geometry.Rect{P1: geometry.IntVec{X: 5, Y: 7}, P2: geometry.IntVec{X: 100, Y: 100}},
			geometry.Rect{P1: geometry.IntVec{X: 5, Y: 7}, P2: geometry.IntVec{X: 24, Y: 16}},
		},
		{
			"negative corner",
			geometry.Rect{P1: geometry.IntVec{X: -3, Y: -8}, P2: geometry.IntVec{X: 2, Y: 2}},
			geometry.Rect{P1: geometry.IntVec{}, P2: geometry.IntVec{X: 19, Y: 9}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewFetchImage(origin, tt.region, target).Region; got != tt.want {
				t.Errorf("Region = %+v, want %+v", got, tt.want)
			}
		})
	}
}
