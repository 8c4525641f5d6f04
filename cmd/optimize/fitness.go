package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/sim"
	"github.com/blobject/emergence-sub000/telemetry"
)

// Target selects which structure the optimizer rewards.
type Target string

const (
	TargetCells  Target = "cells"
	TargetSpores Target = "spores"
)

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case TargetCells, TargetSpores:
		return t, nil
	}
	return "", fmt.Errorf("unknown target %q (want cells or spores)", s)
}

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int64
	seeds      []int64
	baseConfig *config.Config
	target     Target

	mu          sync.Mutex
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []int64, baseCfg *config.Config, target Target) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
		target:     target,
	}
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// runResult holds the results from a single simulation run.
type runResult struct {
	windowStats []telemetry.WindowStats // collected from window events
	census      analysis.Census         // final clustering pass
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is negative quality, averaged over seeds. Invalid parameters score 0.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		slog.Warn("rejected parameters", "error", err)
		return 0
	}

	// Run all seeds in parallel
	qualities := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := fe.runSimulation(cfg, seed)
			if err != nil {
				slog.Warn("evaluation run failed", "seed", seed, "error", err)
				return
			}
			qualities[i] = computeQuality(result, fe.target)
		}()
	}
	wg.Wait()

	var total float64
	for _, q := range qualities {
		total += q
	}
	quality := total / float64(len(fe.seeds))

	fe.mu.Lock()
	fe.lastQuality = quality
	fe.mu.Unlock()

	return -quality
}

// runSimulation executes a single headless simulation run for maxTicks.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) (*runResult, error) {
	s, err := sim.New(cfg, sim.Options{
		Seed:   seed,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	result := &runResult{}
	s.Subscribe(func(ev sim.Event) {
		if ev.Kind == sim.EventWindow {
			result.windowStats = append(result.windowStats, *ev.Stats)
		}
	})

	if err := s.Run(context.Background(), 0); err != nil {
		return nil, err
	}
	_, result.census, err = s.Cluster(float32(cfg.Cluster.Radius), cfg.Cluster.MinPts)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// copyConfig returns a copy of the base config with the tick budget set.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Run.MaxTicks = fe.maxTicks
	// clustering only at the end of a run
	cfg.Cluster.Every = 0
	return &cfg
}

// Quality component weights.
const (
	qualityWeightStructure = 0.50
	qualityWeightStability = 0.25
	qualityWeightClusters  = 0.25

	qualityWarmupWindows = 3    // skip first N windows (warmup)
	structureScale       = 0.10 // structure fraction scoring 1-1/e
	clusterScale         = 5.0  // cluster count scoring 1-1/e
)

// computeQuality computes structure quality ∈ [0, 1] from a run.
func computeQuality(r *runResult, target Target) float64 {
	windows := r.windowStats
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	fracs := make([]float64, 0, len(valid))
	for _, w := range valid {
		if target == TargetSpores {
			fracs = append(fracs, w.MatureSporeFrac)
		} else {
			fracs = append(fracs, w.CellFrac)
		}
	}

	// 1. Share of agents in the target structure
	mean := stat.Mean(fracs, nil)
	structureScore := 1 - math.Exp(-mean/structureScale)

	// 2. Stability of that share across windows
	stabilityScore := 0.0
	if cv := telemetry.CoefficientOfVariation(fracs); len(fracs) >= 2 && !math.IsInf(cv, 0) {
		stabilityScore = math.Exp(-cv * cv)
	}

	// 3. Distinct clusters of the target kind at the end
	clusters := r.census.CellClusters
	if target == TargetSpores {
		clusters = r.census.SporeClusters
	}
	clusterScore := 1 - math.Exp(-float64(clusters)/clusterScale)

	quality := qualityWeightStructure*structureScore +
		qualityWeightStability*stabilityScore +
		qualityWeightClusters*clusterScore

	return clamp01(quality)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	return max(0, min(x, 1))
}
