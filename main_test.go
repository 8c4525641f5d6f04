package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/sim"
	"github.com/blobject/emergence-sub000/state"
)

const smallConfig = `world:
  width: 100
  height: 100
population:
  initial: 120
run:
  seed: 5
telemetry:
  stats_window: 2
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestRunSeed(t *testing.T) {
	cfg := config.Defaults()
	cfg.Run.Seed = 9

	seed = 3
	if got := runSeed(cfg); got != 3 {
		t.Errorf("flag seed = %d, want 3", got)
	}
	seed = 0
	if got := runSeed(cfg); got != 9 {
		t.Errorf("config seed = %d, want 9", got)
	}
	cfg.Run.Seed = 0
	if got := runSeed(cfg); got == 0 {
		t.Error("time-based seed is zero")
	}
}

func TestSweepCommand(t *testing.T) {
	cfgPath := writeTemp(t, "cfg.yaml", smallConfig)
	dir := t.TempDir()
	out := execute(t, "--config", cfgPath, "sweep",
		"--ticks", "3", "--pattern", "0,4", "--jobs", "2", "--output-dir", dir)

	var rows []SweepRow
	if err := gocsv.UnmarshalString(out, &rows); err != nil {
		t.Fatalf("parsing output: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for i, want := range []int{0, 4} {
		r := rows[i]
		if r.Pattern != want || r.Ticks != 3 || r.Agents != 120 {
			t.Errorf("row %d = %+v", i, r)
		}
		if r.AlphaDeg != config.Patterns[want].AlphaDeg || r.BetaDeg != config.Patterns[want].BetaDeg {
			t.Errorf("row %d angles = %v, %v", i, r.AlphaDeg, r.BetaDeg)
		}
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("pattern%02d", want), "stats.csv")); err != nil {
			t.Errorf("pattern %d telemetry: %v", want, err)
		}
	}
}

func TestClusterCommand(t *testing.T) {
	cfgPath := writeTemp(t, "cfg.yaml", smallConfig)
	runPath := writeTemp(t, "square.run", `-1 100 100 180 17 24 1.3 4 0 2
0 10 10 0
1 11 10 90
2 10 11 180
3 11 11 270
4 50 50 0
`)
	pngPath := filepath.Join(t.TempDir(), "clusters.png")
	out := execute(t, "--config", cfgPath, "cluster", "--radius", "3", "--min-pts", "3", "--png", pngPath, runPath)

	var census []analysis.Census
	if err := gocsv.UnmarshalString(out, &census); err != nil {
		t.Fatalf("parsing output: %v\n%s", err, out)
	}
	if len(census) != 1 || census[0].Clusters != 1 || census[0].Cores != 4 || census[0].MinPts != 3 {
		t.Errorf("census = %+v", census)
	}
	if _, err := os.Stat(pngPath); err != nil {
		t.Errorf("png not written: %v", err)
	}
}

func TestReloadedParams(t *testing.T) {
	cur := state.Params{Population: 7, Width: 50, Height: 40, Scope: 5, MaxTicks: 9}
	c := config.Defaults()
	c.Motion.BetaDeg = 30
	if err := c.Refresh(); err != nil {
		t.Fatal(err)
	}

	got := reloadedParams(cur, c)
	if got.Population != 7 || got.Width != 50 || got.Height != 40 || got.MaxTicks != 9 {
		t.Errorf("kept fields = %+v", got)
	}
	if got.Beta != config.DegToRad(30) || got.Scope != 24 {
		t.Errorf("motion = beta %v scope %v, want %v and 24", got.Beta, got.Scope, config.DegToRad(30))
	}
}

func TestReloadKeepsLoadedRun(t *testing.T) {
	cfg := config.Defaults()
	s, err := sim.New(cfg, sim.Options{Seed: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	runPath := writeTemp(t, "two.run", "-1 100 100 180 17 24 1.3 4 0 2\n0 10 10 0\n1 60 70 90\n")
	if err := s.Load(runPath); err != nil {
		t.Fatal(err)
	}

	edited := config.Defaults()
	edited.Motion.Speed = 2
	if err := edited.Refresh(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reconfigure(reloadedParams(s.Params(), edited), false); err != nil {
		t.Fatal(err)
	}

	f := s.Frame()
	if f.Len() != 2 || f.Width != 100 || f.Height != 100 {
		t.Fatalf("frame = %d agents in %vx%v, want 2 in 100x100", f.Len(), f.Width, f.Height)
	}
	if f.X[1] != 60 || f.Y[1] != 70 {
		t.Errorf("agent 1 at (%v, %v), want (60, 70)", f.X[1], f.Y[1])
	}
	if s.Params().Speed != 2 {
		t.Errorf("speed = %v, want 2", s.Params().Speed)
	}
}
