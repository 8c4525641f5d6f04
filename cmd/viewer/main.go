// Command viewer shows a running particle system in a window with sliders for
// the motion parameters.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	loadPath := flag.String("load", "", "Run file to start from")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed, time-based if that is 0 too)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	savePath := flag.String("save", "run.txt", "Run file written by the Save button")
	pattern := flag.Int("pattern", -1, "Apply motion preset N before starting")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *pattern >= 0 {
		if err := cfg.ApplyPattern(*pattern); err != nil {
			slog.Error("bad pattern", "error", err)
			os.Exit(1)
		}
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = cfg.Run.Seed
	}
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	s, err := sim.New(cfg, sim.Options{Seed: rngSeed, OutputDir: *outputDir})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()
	if *loadPath != "" {
		if err := s.Load(*loadPath); err != nil {
			slog.Error("failed to load run file", "error", err)
			os.Exit(1)
		}
	}

	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width+panelWidth), int32(cfg.Screen.Height), "Emergence")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	v := newViewer(s, cfg, rngSeed, *savePath)

	// The simulation steps on its own goroutine; the window only reads frames.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, cfg.Run.TicksPerSecond) }()

	for !rl.WindowShouldClose() {
		v.Update()
		v.Draw()
	}

	cancel()
	if err := <-done; err != nil && ctx.Err() == nil {
		slog.Error("simulation stopped", "error", err)
	}
	s.PerfStats().LogStats()
}
