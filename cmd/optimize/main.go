package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/sim"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// evalRow is one line of optimize_log.csv.
type evalRow struct {
	Eval     int     `csv:"eval"`
	Fitness  float64 `csv:"fitness"`
	AlphaDeg float64 `csv:"alpha_deg"`
	BetaDeg  float64 `csv:"beta_deg"`
	Scope    float64 `csv:"scope"`
	Speed    float64 `csv:"speed"`
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Int64("max-ticks", 2000, "Ticks per evaluation run")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	targetName := flag.String("target", "cells", "Structure to reward: cells or spores")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if *outputDir == "" {
		fatal("missing flag", fmt.Errorf("--output is required"))
	}
	if *maxTicks < 1 {
		fatal("bad tick budget", fmt.Errorf("--max-ticks must be positive, got %d", *maxTicks))
	}
	target, err := ParseTarget(*targetName)
	if err != nil {
		fatal("bad target", err)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fatal("failed to create output directory", err)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		fatal("failed to load config", err)
	}
	baseCfg := config.Cfg()

	params := NewParamVector(baseCfg)

	// Generate seeds for evaluation
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, *maxTicks, evalSeeds, baseCfg, target)

	dim := params.Dim()
	initX := params.Normalize(params.Clamp(params.DefaultVector()))

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation; seeds run in parallel
	}

	popSize := *population
	if popSize == 0 {
		// Auto-size: 4 + floor(3*ln(n))
		popSize = 4 + int(3*math.Log(float64(dim)))
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logPath := filepath.Join(*outputDir, "optimize_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		fatal("failed to create log file", err)
	}
	defer logFile.Close()

	// Track evaluations and timing
	evalCount := 0
	bestFitness := 1.0
	var bestParams []float64
	startTime := time.Now()

	// Wrap the function to log evaluations
	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		fitness := originalFunc(x)
		evalCount++

		// These are the values actually used
		clamped := params.Clamp(params.Denormalize(x))
		if fitness < bestFitness {
			bestFitness = fitness
			bestParams = clamped
		}

		row := []evalRow{{
			Eval: evalCount, Fitness: fitness,
			AlphaDeg: clamped[0], BetaDeg: clamped[1], Scope: clamped[2], Speed: clamped[3],
		}}
		marshal := gocsv.MarshalWithoutHeaders
		if evalCount == 1 {
			marshal = gocsv.Marshal
		}
		if err := marshal(row, logFile); err != nil {
			slog.Error("failed to write log row", "error", err)
		}

		elapsed := time.Since(startTime)
		avgPerEval := elapsed / time.Duration(evalCount)
		remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
		fmt.Printf("Eval %d/%d: quality=%.3f (best=%.3f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, evaluator.LastQuality(), -bestFitness,
			formatDuration(elapsed), formatDuration(remaining))

		return fitness
	}

	fmt.Printf("Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d, target=%s\n",
		dim, popSize, *maxEvals, target)
	fmt.Printf("Seeds per evaluation: %d, ticks per run: %d\n", *seeds, *maxTicks)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best quality: %.3f\n", -bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	// Save best config
	bestCfg := *baseCfg
	if err := params.ApplyToConfig(&bestCfg, bestParams); err != nil {
		fatal("best parameters invalid", err)
	}
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		slog.Error("failed to write best config", "error", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}

	// Replay the best parameters on the first seed and keep the final state
	bestCfg.Run.MaxTicks = *maxTicks
	s, err := sim.New(&bestCfg, sim.Options{Seed: evalSeeds[0], Logger: slog.Default()})
	if err != nil {
		fatal("failed to replay best parameters", err)
	}
	defer s.Close()
	for !s.Done() {
		s.Step()
	}
	runPath := filepath.Join(*outputDir, "best.run")
	if err := s.Save(runPath); err != nil {
		slog.Error("failed to write best run", "error", err)
	} else {
		fmt.Printf("Best run saved to: %s\n", runPath)
	}
}
