package config

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Population.Initial != 4000 || cfg.Population.Fallback != 1000 {
		t.Errorf("population = %+v", cfg.Population)
	}
	if cfg.World.Width != 1000 || cfg.World.Height != 1000 {
		t.Errorf("world = %+v", cfg.World)
	}
	if cfg.Motion.AlphaDeg != 180 || cfg.Motion.BetaDeg != 17 || cfg.Motion.Scope != 24 || cfg.Motion.Speed != 4 {
		t.Errorf("motion = %+v", cfg.Motion)
	}
	if cfg.Backend.Kind != "cpu" || cfg.Run.MaxTicks != -1 {
		t.Errorf("backend/run = %+v %+v", cfg.Backend, cfg.Run)
	}
	if math.Abs(float64(cfg.Derived.Alpha)-math.Pi) > 1e-6 {
		t.Errorf("derived alpha = %v", cfg.Derived.Alpha)
	}
	if cfg.Derived.WorldW32 != 1000 {
		t.Errorf("derived width = %v", cfg.Derived.WorldW32)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cfg.yaml", `
world:
  width: 300
motion:
  beta_deg: -7
backend:
  kind: parallel
render:
  coloring: density20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.World.Width != 300 || cfg.World.Height != 1000 {
		t.Errorf("world = %+v", cfg.World)
	}
	if cfg.Motion.BetaDeg != -7 || cfg.Motion.AlphaDeg != 180 {
		t.Errorf("motion = %+v", cfg.Motion)
	}
	if cfg.Backend.Kind != "parallel" || cfg.Render.Coloring != "density20" {
		t.Errorf("backend/render = %+v %+v", cfg.Backend, cfg.Render)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero width", "world:\n  width: 0\n"},
		{"negative scope", "motion:\n  scope: -1\n"},
		{"unknown backend", "backend:\n  kind: gpu\n"},
		{"zero min pts", "cluster:\n  min_pts: 0\n"},
		{"bad coloring", "render:\n  coloring: rainbow\n"},
		{"bad max ticks", "run:\n  max_ticks: -5\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "cfg.yaml", tc.body)
			if _, err := Load(path); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingAndMalformed(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeFile(t, t.TempDir(), "bad.yaml", "world: [1, 2\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Motion.Scope = 13
	cfg.Cluster.MinPts = 9
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Motion != cfg.Motion || back.Cluster != cfg.Cluster || back.Render != cfg.Render {
		t.Errorf("round trip changed config:\n got %+v\nwant %+v", back, cfg)
	}
}

func TestInitAndCfg(t *testing.T) {
	defer func() { global = nil }()

	global = nil
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected Cfg to panic before Init")
			}
		}()
		Cfg()
	}()

	if err := Init(""); err != nil {
		t.Fatal(err)
	}
	if Cfg().Population.Initial != 4000 {
		t.Error("Cfg did not return the loaded config")
	}
}

func TestApplyPattern(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ApplyPattern(4); err != nil {
		t.Fatal(err)
	}
	if cfg.Motion.AlphaDeg != 0 || cfg.Motion.BetaDeg != -10 {
		t.Errorf("motion = %+v", cfg.Motion)
	}
	if cfg.Derived.Beta >= 0 {
		t.Errorf("derived beta not refreshed: %v", cfg.Derived.Beta)
	}
	if err := cfg.ApplyPattern(len(Patterns)); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestRandomizeStaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := Defaults()
	for i := 0; i < 50; i++ {
		cfg.Randomize(rng)
		if err := cfg.Validate(); err != nil {
			t.Fatalf("randomized config invalid: %v", err)
		}
		if cfg.Motion.AlphaDeg < -180 || cfg.Motion.AlphaDeg > 180 {
			t.Errorf("alpha %v out of range", cfg.Motion.AlphaDeg)
		}
		if cfg.Motion.Scope < 1 || cfg.Motion.Scope > 100 {
			t.Errorf("scope %v out of range", cfg.Motion.Scope)
		}
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.yaml", "motion:\n  speed: 2\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "other.yaml", "motion:\n  speed: 9\n")
	writeFile(t, dir, "cfg.yaml", "motion:\n  speed: 3\n")

	select {
	case c := <-got:
		if c.Motion.Speed != 3 {
			t.Errorf("reloaded speed = %v, want 3", c.Motion.Speed)
		}
	case <-ctx.Done():
		t.Fatal("no reload before timeout")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Watch returned %v", err)
	}
}

func TestRefresh(t *testing.T) {
	cfg := Defaults()
	cfg.World.Width = 250
	cfg.Motion.BetaDeg = 90
	if err := cfg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cfg.Derived.WorldW32 != 250 {
		t.Errorf("derived width = %v, want 250", cfg.Derived.WorldW32)
	}
	if cfg.Derived.Beta != DegToRad(90) {
		t.Errorf("derived beta = %v", cfg.Derived.Beta)
	}

	cfg.Backend.Kind = "gpu"
	if err := cfg.Refresh(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Refresh with bad backend = %v, want ErrInvalid", err)
	}
}
