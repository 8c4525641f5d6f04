// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	World      WorldConfig      `yaml:"world"`
	Population PopulationConfig `yaml:"population"`
	Motion     MotionConfig     `yaml:"motion"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Backend    BackendConfig    `yaml:"backend"`
	Run        RunConfig        `yaml:"run"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Bookmarks  BookmarksConfig  `yaml:"bookmarks"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Render     RenderConfig     `yaml:"render"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds viewer window settings.
type ScreenConfig struct {
	Width     int `yaml:"width" validate:"gt=0"`
	Height    int `yaml:"height" validate:"gt=0"`
	TargetFPS int `yaml:"target_fps" validate:"gte=0"`
}

// WorldConfig holds the arena dimensions. The arena wraps on both axes.
type WorldConfig struct {
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// PopulationConfig holds population sizes.
type PopulationConfig struct {
	Initial  int `yaml:"initial" validate:"gte=0"`
	Fallback int `yaml:"fallback" validate:"gte=0"` // used when a loaded run file has no agents
}

// MotionConfig holds the motion rule. Angles are in degrees.
type MotionConfig struct {
	AlphaDeg       float64 `yaml:"alpha_deg"`
	BetaDeg        float64 `yaml:"beta_deg"`
	Scope          float64 `yaml:"scope" validate:"gt=0"`
	AScope         float64 `yaml:"ascope" validate:"gte=0"` // close-range scope for mature spores
	Speed          float64 `yaml:"speed"`
	NoiseDeg       float64 `yaml:"noise_deg" validate:"gte=0"` // full width of the per-tick heading jitter
	ParticleRadius float64 `yaml:"particle_radius" validate:"gt=0"`
}

// ClusterConfig holds density clustering parameters.
type ClusterConfig struct {
	Radius float64 `yaml:"radius" validate:"gt=0"`
	MinPts int     `yaml:"min_pts" validate:"gte=1"`
	Every  int     `yaml:"every" validate:"gte=0"` // ticks between automatic passes, 0 = manual only
}

// BackendConfig selects the seek/move implementation.
type BackendConfig struct {
	Kind    string `yaml:"kind" validate:"oneof=cpu parallel"`
	Workers int    `yaml:"workers" validate:"gte=0"` // 0 = GOMAXPROCS
}

// RunConfig holds run loop parameters.
type RunConfig struct {
	MaxTicks       int64   `yaml:"max_ticks" validate:"gte=-1"`       // -1 = unlimited
	TicksPerSecond float64 `yaml:"ticks_per_second" validate:"gte=0"` // 0 = unpaced
	Seed           int64   `yaml:"seed"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int    `yaml:"stats_window" validate:"gte=1"` // ticks per stats window
	PerfCollectorWindow int    `yaml:"perf_collector_window" validate:"gte=1"`
	BookmarkHistorySize int    `yaml:"bookmark_history_size" validate:"gte=1"`
	OutputDir           string `yaml:"output_dir"`
}

// BookmarksConfig holds bookmark detection thresholds.
type BookmarksConfig struct {
	SporeEmergence SporeEmergenceConfig `yaml:"spore_emergence"`
	CellEmergence  CellEmergenceConfig  `yaml:"cell_emergence"`
	DensityCrash   DensityCrashConfig   `yaml:"density_crash"`
	StablePattern  StablePatternConfig  `yaml:"stable_pattern"`
}

// SporeEmergenceConfig triggers when mature spores first reach a fraction.
type SporeEmergenceConfig struct {
	MinFraction float64 `yaml:"min_fraction" validate:"gte=0,lte=1"`
}

// CellEmergenceConfig triggers when cell cores jump above their rolling mean.
type CellEmergenceConfig struct {
	Multiplier float64 `yaml:"multiplier" validate:"gte=1"`
	MinCores   int     `yaml:"min_cores" validate:"gte=0"`
}

// DensityCrashConfig triggers when mean neighbour count drops from its peak.
type DensityCrashConfig struct {
	DropPercent float64 `yaml:"drop_percent" validate:"gt=0,lte=1"`
}

// StablePatternConfig triggers when the kind mix stops changing.
type StablePatternConfig struct {
	CVThreshold   float64 `yaml:"cv_threshold" validate:"gt=0"`
	StableWindows int     `yaml:"stable_windows" validate:"gte=2"`
}

// MetricsConfig holds the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// RenderConfig holds colouring and frame export settings.
type RenderConfig struct {
	Coloring string  `yaml:"coloring" validate:"coloring"`
	Scale    float64 `yaml:"scale" validate:"gt=0"` // pixels per arena unit in exported frames
	Ghosts   bool    `yaml:"ghosts"`                // draw wrap-around copies at the edges
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	WorldW32 float32 // World.Width as float32
	WorldH32 float32 // World.Height as float32
	Alpha    float32 // radians
	Beta     float32 // radians
	Noise    float32 // radians
}

var (
	validate        = validator.New()
	coloringPattern = regexp.MustCompile(`^(normal|dynamic|cluster|density[0-9]+)$`)
)

func init() {
	_ = validate.RegisterValidation("coloring", func(fl validator.FieldLevel) bool {
		return coloringPattern.MatchString(fl.Field().String())
	})
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Refresh revalidates c after fields were changed in code and recomputes the
// derived values.
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.WorldW32 = float32(c.World.Width)
	c.Derived.WorldH32 = float32(c.World.Height)
	c.Derived.Alpha = DegToRad(c.Motion.AlphaDeg)
	c.Derived.Beta = DegToRad(c.Motion.BetaDeg)
	c.Derived.Noise = DegToRad(c.Motion.NoiseDeg)
}

// DegToRad converts degrees to float32 radians.
func DegToRad(deg float64) float32 { return float32(deg * math.Pi / 180) }

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
