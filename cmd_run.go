package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/render"
	"github.com/blobject/emergence-sub000/sim"
	"github.com/blobject/emergence-sub000/state"
)

var (
	loadPath     string
	savePath     string
	maxTicks     int64
	backendKind  string
	workers      int
	clusterEvery int
	coloring     string
	pattern      int
	outputDir    string
	snapshotDir  string
	metricsAddr  string
	watchConfig  bool
	pngEvery     int
	pngDir       string
	logStats     bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the simulation headless",
		Long: `Run steps the simulation until the tick budget is spent or the process
is interrupted. Stats, bookmarks and cluster censuses can be written as CSV,
frames exported as PNG and metrics served for Prometheus.`,
		Args: cobra.NoArgs,
		RunE: runSimulation,
	}
)

func init() {
	f := runCmd.Flags()
	f.StringVar(&loadPath, "load", "", "Run file to start from")
	f.StringVar(&savePath, "save", "", "Write the final state to this run file")
	f.Int64Var(&maxTicks, "max-ticks", -1, "Stop after N ticks (-1 = unlimited, unset = config value)")
	f.StringVar(&backendKind, "backend", "", "Seek/move backend: cpu or parallel (empty = config value)")
	f.IntVar(&workers, "workers", 0, "Parallel backend workers (0 = config value)")
	f.IntVar(&clusterEvery, "cluster-every", 0, "Cluster every N ticks (0 = never, unset = config value)")
	f.StringVar(&coloring, "coloring", "", "Colouring scheme: normal, dynamic, cluster or densityN")
	f.IntVar(&pattern, "pattern", -1, "Apply motion preset N before starting")
	f.StringVar(&outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	f.StringVar(&snapshotDir, "snapshot-dir", "", "Directory for run files saved on bookmarks")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&watchConfig, "watch", false, "Reload motion and colouring when the config file changes (population and arena stay)")
	f.IntVar(&pngEvery, "png-every", 0, "Export a PNG frame every N ticks (0 = never)")
	f.StringVar(&pngDir, "png-dir", "frames", "Directory for exported PNG frames")
	f.BoolVar(&logStats, "log-stats", false, "Output stats via slog")
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if pattern >= 0 {
		if err := cfg.ApplyPattern(pattern); err != nil {
			return err
		}
		slog.Info("pattern applied", "pattern", pattern, "name", config.Patterns[pattern].Name)
	}
	if flags.Changed("max-ticks") {
		cfg.Run.MaxTicks = maxTicks
	}
	if backendKind != "" {
		cfg.Backend.Kind = backendKind
	}
	if workers > 0 {
		cfg.Backend.Workers = workers
	}
	if flags.Changed("cluster-every") {
		cfg.Cluster.Every = clusterEvery
	}
	if coloring != "" {
		cfg.Render.Coloring = coloring
	}
	if outputDir == "" {
		outputDir = cfg.Telemetry.OutputDir
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	return cfg.Refresh()
}

func renderOptions(cfg *config.Config) render.Options {
	return render.Options{Scale: cfg.Render.Scale, Ghosts: cfg.Render.Ghosts, Label: true}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Cfg()
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if watchConfig && configPath == "" {
		return errors.New("--watch needs --config")
	}

	opts := sim.Options{
		Seed:        runSeed(cfg),
		OutputDir:   outputDir,
		SnapshotDir: snapshotDir,
		LogStats:    logStats,
	}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.Registerer = reg
		serveMetrics(ctx, metricsAddr, reg)
	}

	s, err := sim.New(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("failed to close simulation", "error", err)
		}
	}()
	// stop the watcher before the simulation closes
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if loadPath != "" {
		if err := s.Load(loadPath); err != nil {
			return err
		}
	}
	if pngEvery > 0 {
		if err := exportFrames(s, pngEvery, pngDir, renderOptions(cfg)); err != nil {
			return err
		}
	}
	if watchConfig {
		go watchParams(ctx, s)
	}

	slog.Info("starting headless simulation",
		"seed", opts.Seed,
		"max_ticks", cfg.Run.MaxTicks,
		"ticks_per_second", cfg.Run.TicksPerSecond,
		"backend", cfg.Backend.Kind,
	)
	start := time.Now()
	runErr := ignoreCanceled(s.Run(ctx, cfg.Run.TicksPerSecond))
	slog.Info("simulation stopped", "tick", s.Tick(), "elapsed", time.Since(start).String())
	s.PerfStats().LogStats()

	if savePath != "" {
		if err := s.Save(savePath); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// exportFrames saves a PNG of every n-th tick into dir.
func exportFrames(s *sim.Simulation, n int, dir string, opt render.Options) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating frame directory: %w", err)
	}
	s.Subscribe(func(ev sim.Event) {
		if ev.Kind != sim.EventTick || ev.Tick%int64(n) != 0 {
			return
		}
		frame := s.Frame()
		path := filepath.Join(dir, fmt.Sprintf("frame%08d.png", ev.Tick))
		if err := render.SavePNG(path, &frame, opt); err != nil {
			slog.Error("failed to export frame", "error", err)
		}
	})
	return nil
}

// watchParams applies motion and colouring changes from the config file to s.
// The running population, arena and tick budget are kept.
func watchParams(ctx context.Context, s *sim.Simulation) {
	err := config.Watch(ctx, configPath, func(c *config.Config) {
		if _, err := s.Reconfigure(reloadedParams(s.Params(), c), false); err != nil {
			slog.Warn("reloaded config rejected", "error", err)
			return
		}
		scheme, err := analysis.ParseScheme(c.Render.Coloring)
		if err != nil {
			slog.Warn("reloaded coloring rejected", "error", err)
			return
		}
		s.SetScheme(scheme)
	})
	if err := ignoreCanceled(err); err != nil {
		slog.Error("config watcher stopped", "error", err)
	}
}

// reloadedParams takes the motion block from c and keeps the population,
// arena and tick budget of cur, so a reload never respawns a loaded run.
func reloadedParams(cur state.Params, c *config.Config) state.Params {
	p := sim.ParamsFromConfig(c)
	p.Population = cur.Population
	p.Width, p.Height = cur.Width, cur.Height
	p.MaxTicks = cur.MaxTicks
	return p
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
}
