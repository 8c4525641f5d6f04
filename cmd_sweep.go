package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/sim"
	"github.com/blobject/emergence-sub000/state"
)

var (
	sweepTicks   int64
	sweepLimit   int
	sweepOutput  string
	sweepPattern []int

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run every motion preset and compare what emerges",
		Long: `Sweep runs one headless simulation per motion preset, all from the same
seed, clusters each at the end and prints one CSV row per preset. With
--output-dir every preset also writes its own telemetry directory.`,
		Args: cobra.NoArgs,
		RunE: runSweep,
	}
)

func init() {
	f := sweepCmd.Flags()
	f.Int64Var(&sweepTicks, "ticks", 500, "Ticks per preset")
	f.IntVar(&sweepLimit, "jobs", runtime.GOMAXPROCS(0), "Presets run at once")
	f.StringVar(&sweepOutput, "output-dir", "", "Parent directory for per-preset telemetry")
	f.IntSliceVar(&sweepPattern, "pattern", nil, "Presets to run (default all)")
}

// SweepRow summarises one preset at the end of its run.
type SweepRow struct {
	Pattern         int     `csv:"pattern"`
	Name            string  `csv:"name"`
	AlphaDeg        float64 `csv:"alpha_deg"`
	BetaDeg         float64 `csv:"beta_deg"`
	Ticks           int64   `csv:"ticks"`
	Agents          int     `csv:"agents"`
	Nutrients       int     `csv:"nutrients"`
	PrematureSpores int     `csv:"premature_spores"`
	MatureSpores    int     `csv:"mature_spores"`
	CellHulls       int     `csv:"cell_hulls"`
	CellCores       int     `csv:"cell_cores"`
	Clusters        int     `csv:"clusters"`
	SporeClusters   int     `csv:"spore_clusters"`
	CellClusters    int     `csv:"cell_clusters"`
	AvgTickUS       int64   `csv:"avg_tick_us"`
}

func runSweep(cmd *cobra.Command, args []string) error {
	base := config.Cfg()
	patterns := sweepPattern
	if len(patterns) == 0 {
		for i := range config.Patterns {
			patterns = append(patterns, i)
		}
	}
	seed := runSeed(base)
	rows := make([]SweepRow, len(patterns))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(sweepLimit, 1))
	for i, p := range patterns {
		g.Go(func() error {
			cfg := *base
			if err := cfg.ApplyPattern(p); err != nil {
				return err
			}
			cfg.Run.MaxTicks = sweepTicks
			if err := cfg.Refresh(); err != nil {
				return err
			}

			opts := sim.Options{
				Seed:   seed,
				Logger: slog.Default().With("pattern", p),
			}
			if sweepOutput != "" {
				opts.OutputDir = filepath.Join(sweepOutput, fmt.Sprintf("pattern%02d", p))
			}
			s, err := sim.New(&cfg, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Run(ctx, 0); err != nil {
				return err
			}
			_, census, err := s.Cluster(float32(cfg.Cluster.Radius), cfg.Cluster.MinPts)
			if err != nil {
				return err
			}

			frame := s.Frame()
			kinds := analysis.CountKinds(frame.Kind)
			rows[i] = SweepRow{
				Pattern:         p,
				Name:            config.Patterns[p].Name,
				AlphaDeg:        cfg.Motion.AlphaDeg,
				BetaDeg:         cfg.Motion.BetaDeg,
				Ticks:           s.Tick(),
				Agents:          frame.Len(),
				Nutrients:       kinds[state.KindNutrient],
				PrematureSpores: kinds[state.KindPrematureSpore],
				MatureSpores:    kinds[state.KindMatureSpore],
				CellHulls:       kinds[state.KindCellHull],
				CellCores:       kinds[state.KindCellCore],
				Clusters:        census.Clusters,
				SporeClusters:   census.SporeClusters,
				CellClusters:    census.CellClusters,
				AvgTickUS:       s.PerfStats().AvgTickDuration.Microseconds(),
			}
			slog.Info("preset finished", "pattern", p, "name", rows[i].Name, "census", census)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ignoreCanceled(err)
	}

	if err := gocsv.Marshal(rows, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("writing sweep results: %w", err)
	}
	return nil
}
