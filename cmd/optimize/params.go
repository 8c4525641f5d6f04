// Package main provides CMA-ES optimization for motion parameters.
package main

import (
	"github.com/blobject/emergence-sub000/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the motion parameters. Scope and speed bounds scale
// with the arena the way config.Randomize draws them.
func NewParamVector(cfg *config.Config) *ParamVector {
	scale := min(cfg.World.Width, cfg.World.Height) / 100
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "alpha_deg", Path: "motion.alpha_deg", Min: -180, Max: 180, Default: cfg.Motion.AlphaDeg},
			{Name: "beta_deg", Path: "motion.beta_deg", Min: -60, Max: 60, Default: cfg.Motion.BetaDeg},
			{Name: "scope", Path: "motion.scope", Min: 1, Max: max(2, 10*scale), Default: cfg.Motion.Scope},
			{Name: "speed", Path: "motion.speed", Min: 0.1, Max: max(1, scale), Default: cfg.Motion.Speed},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = max(spec.Min, min(v[i], spec.Max))
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct and refreshes its
// derived values. Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	clamped := pv.Clamp(values)
	cfg.Motion.AlphaDeg = clamped[0]
	cfg.Motion.BetaDeg = clamped[1]
	cfg.Motion.Scope = clamped[2]
	cfg.Motion.Speed = clamped[3]
	return cfg.Refresh()
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Motion.AlphaDeg,
		cfg.Motion.BetaDeg,
		cfg.Motion.Scope,
		cfg.Motion.Speed,
	}
}
