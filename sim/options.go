package sim

import (
	"log/slog"

	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/state"
	"github.com/prometheus/client_golang/prometheus"
)

// Options holds the simulation settings that are not part of the config file.
type Options struct {
	Seed        int64
	Logger      *slog.Logger          // nil = slog.Default()
	Registerer  prometheus.Registerer // nil = no metrics
	OutputDir   string                // CSV logs and config copy, empty = disabled
	SnapshotDir string                // run files saved on bookmarks, empty = disabled
	LogStats    bool                  // log every stats window
}

// ParamsFromConfig converts the motion and population sections of cfg to run
// parameters.
func ParamsFromConfig(cfg *config.Config) state.Params {
	return state.Params{
		Population:     cfg.Population.Initial,
		Width:          cfg.Derived.WorldW32,
		Height:         cfg.Derived.WorldH32,
		Alpha:          cfg.Derived.Alpha,
		Beta:           cfg.Derived.Beta,
		Scope:          float32(cfg.Motion.Scope),
		AScope:         float32(cfg.Motion.AScope),
		Speed:          float32(cfg.Motion.Speed),
		Noise:          cfg.Derived.Noise,
		ParticleRadius: float32(cfg.Motion.ParticleRadius),
		MaxTicks:       cfg.Run.MaxTicks,
	}
}
