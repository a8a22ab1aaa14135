package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/clusters/access"
	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/control"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/monitor"
	"github.com/pthm-cable/clusters/scenario"
	"github.com/pthm-cable/clusters/server"
	"github.com/pthm-cable/clusters/telemetry"
	"github.com/pthm-cable/clusters/viewer"
	"github.com/pthm-cable/clusters/worker"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Uint64("max-ticks", 0, "Stop after N timesteps (0 = unlimited)")
	rate := flag.Int("rate", -1, "Timesteps per second (0 = unlimited, -1 = use config)")

	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tps := cfg.Worker.TimestepsPerSecond
	if *rate >= 0 {
		tps = *rate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	om, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	space := geometry.Space{Width: cfg.World.Width, Height: cfg.World.Height}
	k := kernel.NewCPU(space, cfg.Simulation, cfg.Execution,
		kernel.WithSeed(rngSeed),
		kernel.WithParallelThreshold(cfg.Worker.ParallelThreshold),
	)
	defer k.Close()

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	w := worker.New(k,
		worker.WithPerf(perf),
		worker.WithRate(tps),
		worker.WithExecutionParameters(cfg.Execution),
	)
	w.Start(ctx)
	defer w.Close()

	facade := access.New(w, space, access.ConfigFrom(cfg), access.WithRand(rng))
	defer facade.Close()
	mon := monitor.New(w, monitor.WithOutput(om))
	defer mon.Close()
	ctrl := control.New(w, control.WithParameterListeners(facade))

	population := scenario.NewBuilder(cfg.Simulation).RandomPopulation(rng, space, cfg.Scenario)
	if err := facade.UpdateData(description.AddAll(population)); err != nil {
		slog.Error("failed to install initial population", "error", err)
		os.Exit(1)
	}

	var hub *server.Hub
	if cfg.Server.Addr != "" {
		hub = server.NewHub(ctrl, logger)
		srv := &http.Server{Addr: cfg.Server.Addr, Handler: hub.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("stats server failed", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("stats server listening", "addr", cfg.Server.Addr)
	}

	go reportStats(ctx, mon, w, hub, om, cfg.Derived.StatsInterval, *logStats)

	if *headless {
		slog.Info("starting headless simulation",
			"seed", rngSeed,
			"max_ticks", *maxTicks,
			"rate", tps,
			"clusters", len(population.Clusters),
			"particles", len(population.Particles),
		)
		ctrl.Run()
		runHeadless(ctx, w, ctrl, *maxTicks)
		return
	}

	// Graphical mode
	rl.InitWindow(int32(cfg.Viewer.Width), int32(cfg.Viewer.Height), "Clusters")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Viewer.TargetFPS))

	v := viewer.New(facade, ctrl, mon, w, space, logger)
	defer v.Close()
	ctrl.Run()
	v.Run(ctx)
}

// runHeadless waits until maxTicks timesteps have run or ctx is done.
func runHeadless(ctx context.Context, w *worker.Worker, ctrl *control.Controller, maxTicks uint64) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted", "timestep", w.Timestep())
			return
		case <-ticker.C:
			if maxTicks > 0 && w.Timestep() >= maxTicks {
				ctrl.Stop()
				slog.Info("max ticks reached", "timestep", w.Timestep())
				return
			}
		}
	}
}

// reportStats requests monitor stats periodically and fans them out to the
// log, the websocket hub and the perf CSV.
func reportStats(ctx context.Context, mon *monitor.Monitor, w *worker.Worker, hub *server.Hub,
	om *telemetry.OutputManager, interval time.Duration, logStats bool) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.RequireStats()
		case s := <-mon.Updates():
			perf := w.Perf().Stats()
			if logStats {
				slog.Info("stats", "world", s, "perf", perf)
			}
			if hub != nil {
				hub.Broadcast(s, w.IsSimulationRunning())
			}
			if err := om.WritePerf(perf, w.Timestep()); err != nil {
				slog.Error("failed to write perf", "error", err)
			}
		}
	}
}
