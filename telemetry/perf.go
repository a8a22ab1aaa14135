// Package telemetry provides worker performance tracking and CSV output of monitor statistics.
package telemetry

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// PhaseStep is the phase of simulation steps; job phases are named after their kind.
const PhaseStep = "step"

// Job phases grouped in the CSV export.
const (
	PhaseFetchForEdit      = "fetch_for_edit"
	PhaseFetchForUpdate    = "fetch_for_update"
	PhaseWriteBack         = "write_back"
	PhaseFetchImage        = "fetch_image"
	PhaseFetchMonitorStats = "fetch_monitor_stats"
)

// PerfSample holds timing data for a single worker iteration.
type PerfSample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
	Jobs         int
}

// PerfCollector tracks worker iteration timings over a rolling window.
// The worker records, other goroutines read Stats.
type PerfCollector struct {
	mu            sync.Mutex
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	currentJobs   int
	tickStart     time.Time
	phaseStart    time.Time
	lastPhase     string

	// Frame timing (for graphics mode)
	lastFrameTime time.Time
	frameDuration time.Duration
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of iterations to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new worker iteration.
func (p *PerfCollector) StartTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.currentJobs = 0
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	if phase != PhaseStep {
		p.currentJobs++
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndTick finishes timing the current iteration and records the sample.
func (p *PerfCollector) EndTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Phases:       p.currentPhases,
		Jobs:         p.currentJobs,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// RecordFrame records frame timing for graphics mode.
func (p *PerfCollector) RecordFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if !p.lastFrameTime.IsZero() {
		p.frameDuration = now.Sub(p.lastFrameTime)
	}
	p.lastFrameTime = now
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P90TickDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total iteration time
	PhasePct map[string]float64

	TicksPerSecond float64
	JobsPerTick    float64

	// Frame timing (graphics mode)
	FrameDuration time.Duration
	FPS           float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fps float64
	if p.frameDuration > 0 {
		fps = float64(time.Second) / float64(p.frameDuration)
	}

	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg:      make(map[string]time.Duration),
			PhasePct:      make(map[string]float64),
			FrameDuration: p.frameDuration,
			FPS:           fps,
		}
	}

	var totalTick time.Duration
	var minTick, maxTick time.Duration
	var jobs int
	ticks := make([]float64, p.sampleCount)
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalTick += s.TickDuration
		jobs += s.Jobs
		ticks[i] = float64(s.TickDuration)

		if i == 0 || s.TickDuration < minTick {
			minTick = s.TickDuration
		}
		if s.TickDuration > maxTick {
			maxTick = s.TickDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgTick := totalTick / time.Duration(p.sampleCount)
	sort.Float64s(ticks)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgTick > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgTick) * 100
		}
	}

	var ticksPerSec float64
	if avgTick > 0 {
		ticksPerSec = float64(time.Second) / float64(avgTick)
	}

	return PerfStats{
		AvgTickDuration: avgTick,
		MinTickDuration: minTick,
		MaxTickDuration: maxTick,
		P90TickDuration: time.Duration(Percentile(ticks, 0.9)),
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		TicksPerSecond:  ticksPerSec,
		JobsPerTick:     float64(jobs) / float64(p.sampleCount),
		FrameDuration:   p.frameDuration,
		FPS:             fps,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p90_tick_us", s.P90TickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("jobs_per_tick", s.JobsPerTick),
	}

	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}

	for phase, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Timestep     uint64  `csv:"timestep"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	P90TickUS    int64   `csv:"p90_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	JobsPerTick  float64 `csv:"jobs_per_tick"`
	FPS          float64 `csv:"fps"`
	StepPct      float64 `csv:"step_pct"`
	FetchPct     float64 `csv:"fetch_pct"`
	WriteBackPct float64 `csv:"write_back_pct"`
	ImagePct     float64 `csv:"image_pct"`
	MonitorPct   float64 `csv:"monitor_pct"`
	OtherJobsPct float64 `csv:"other_jobs_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(timestep uint64) PerfStatsCSV {
	out := PerfStatsCSV{
		Timestep:     timestep,
		AvgTickUS:    s.AvgTickDuration.Microseconds(),
		MinTickUS:    s.MinTickDuration.Microseconds(),
		MaxTickUS:    s.MaxTickDuration.Microseconds(),
		P90TickUS:    s.P90TickDuration.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		JobsPerTick:  s.JobsPerTick,
		FPS:          s.FPS,
		StepPct:      s.PhasePct[PhaseStep],
		FetchPct:     s.PhasePct[PhaseFetchForEdit] + s.PhasePct[PhaseFetchForUpdate],
		WriteBackPct: s.PhasePct[PhaseWriteBack],
		ImagePct:     s.PhasePct[PhaseFetchImage],
		MonitorPct:   s.PhasePct[PhaseFetchMonitorStats],
	}
	for phase, pct := range s.PhasePct {
		switch phase {
		case PhaseStep, PhaseFetchForEdit, PhaseFetchForUpdate, PhaseWriteBack, PhaseFetchImage, PhaseFetchMonitorStats:
		default:
			out.OtherJobsPct += pct
		}
	}
	return out
}
