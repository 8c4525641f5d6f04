package sim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/runfile"
	"github.com/blobject/emergence-sub000/state"
	"github.com/blobject/emergence-sub000/systems"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.World.Width, cfg.World.Height = 200, 200
	cfg.Population.Initial = 300
	cfg.Population.Fallback = 50
	cfg.Run.MaxTicks = -1
	cfg.Telemetry.StatsWindow = 5
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func quietOptions(seed int64) Options {
	return Options{Seed: seed, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newSim(t *testing.T, cfg *config.Config, opts Options) *Simulation {
	t.Helper()
	s, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeRun(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.run")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// five agents: a tight square of four and one far away
const squareRun = `-1 100 100 180 17 24 1.3 4 0 2
0 10 10 0
1 11 10 90
2 10 11 180
3 11 11 270
4 50 50 0
`

func TestNew(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))

	if s.Tick() != 0 {
		t.Errorf("tick = %d, want 0", s.Tick())
	}
	f := s.Frame()
	if f.Len() != 300 || f.Width != 200 || f.Height != 200 {
		t.Errorf("frame = %d agents in %vx%v", f.Len(), f.Width, f.Height)
	}
	if s.RunID() == "" {
		t.Error("empty run id")
	}
	for i := range f.Len() {
		if f.Opacity[i] == 0 {
			t.Fatalf("agent %d not coloured at tick 0", i)
		}
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"coloring", func(c *config.Config) { c.Render.Coloring = "rainbow" }},
		{"backend", func(c *config.Config) { c.Backend.Kind = "gpu" }},
		{"arena", func(c *config.Config) { c.Derived.WorldW32 = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if s, err := New(cfg, quietOptions(1)); err == nil {
				s.Close()
				t.Error("expected error")
			}
		})
	}
}

func TestStep(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))

	var kinds []EventKind
	var ticks []int64
	s.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventTick {
			ticks = append(ticks, ev.Tick)
		}
	})

	before := s.Frame()
	for range 5 {
		s.Step()
	}
	after := s.Frame()

	if s.Tick() != 5 {
		t.Errorf("tick = %d, want 5", s.Tick())
	}
	if !reflect.DeepEqual(ticks, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("tick events = %v", ticks)
	}
	if kinds[len(kinds)-1] != EventWindow {
		t.Errorf("last event = %v, want window", kinds[len(kinds)-1])
	}
	if slices.Equal(before.X, after.X) {
		t.Error("agents did not move")
	}
	for i := range after.Len() {
		if after.X[i] < 0 || after.X[i] >= 200 || after.Y[i] < 0 || after.Y[i] >= 200 {
			t.Fatalf("agent %d left the arena: (%v, %v)", i, after.X[i], after.Y[i])
		}
	}
}

func TestDeterministic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Motion.NoiseDeg = 12
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}

	a := newSim(t, cfg, quietOptions(7))
	b := newSim(t, cfg, quietOptions(7))
	for range 20 {
		a.Step()
		b.Step()
	}
	fa, fb := a.Frame(), b.Frame()
	if !slices.Equal(fa.X, fb.X) || !slices.Equal(fa.Y, fb.Y) || !slices.Equal(fa.Heading, fb.Heading) {
		t.Error("same seed produced different runs")
	}
}

func TestBackendParity(t *testing.T) {
	cpu := testConfig(t)
	cpu.Motion.NoiseDeg = 12
	par := testConfig(t)
	par.Motion.NoiseDeg = 12
	par.Backend.Kind = systems.BackendParallel
	par.Backend.Workers = 4
	for _, c := range []*config.Config{cpu, par} {
		if err := c.Refresh(); err != nil {
			t.Fatal(err)
		}
	}

	a := newSim(t, cpu, quietOptions(3))
	b := newSim(t, par, quietOptions(3))
	for range 25 {
		a.Step()
		b.Step()
	}
	fa, fb := a.Frame(), b.Frame()
	if !slices.Equal(fa.X, fb.X) || !slices.Equal(fa.Y, fb.Y) || !slices.Equal(fa.Heading, fb.Heading) {
		t.Error("cpu and parallel backends diverged")
	}
	if !slices.Equal(fa.Kind, fb.Kind) {
		t.Error("cpu and parallel backends classified differently")
	}
}

func TestReconfigure(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	s.Step()

	var respawns []bool
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventReconfigured {
			respawns = append(respawns, ev.Respawned)
		}
	})

	t.Run("unchanged", func(t *testing.T) {
		changed, err := s.Reconfigure(s.Params(), false)
		if err != nil || changed {
			t.Errorf("Reconfigure = %v, %v; want false, nil", changed, err)
		}
	})

	t.Run("speed keeps positions", func(t *testing.T) {
		before := s.Frame()
		p := s.Params()
		p.Speed = 2
		changed, err := s.Reconfigure(p, false)
		if err != nil || !changed {
			t.Fatalf("Reconfigure = %v, %v", changed, err)
		}
		after := s.Frame()
		if !slices.Equal(before.X, after.X) || !slices.Equal(before.Y, after.Y) {
			t.Error("positions changed")
		}
		if s.Params().Speed != 2 {
			t.Errorf("speed = %v, want 2", s.Params().Speed)
		}
	})

	t.Run("population respawns", func(t *testing.T) {
		p := s.Params()
		p.Population = 150
		if _, err := s.Reconfigure(p, false); err != nil {
			t.Fatal(err)
		}
		if n := s.Frame().Len(); n != 150 {
			t.Errorf("agents = %d, want 150", n)
		}
	})

	t.Run("invalid leaves state", func(t *testing.T) {
		before := s.Params()
		p := before
		p.Width = 0
		changed, err := s.Reconfigure(p, true)
		if !errors.Is(err, state.ErrInvalidParams) || changed {
			t.Errorf("Reconfigure = %v, %v; want false, ErrInvalidParams", changed, err)
		}
		if s.Params() != before {
			t.Error("params changed after invalid reconfigure")
		}
	})

	if !reflect.DeepEqual(respawns, []bool{false, true}) {
		t.Errorf("reconfigure events = %v, want [false true]", respawns)
	}
	if s.Tick() != 1 {
		t.Errorf("tick = %d, reconfigure must not reset it", s.Tick())
	}
}

func TestLoad(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	for range 3 {
		s.Step()
	}

	if err := s.Load(writeRun(t, squareRun)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := s.Params()
	if p.Population != 5 || p.Width != 100 || p.Height != 100 || p.Speed != 4 {
		t.Errorf("params = %+v", p)
	}
	if s.Tick() != 0 {
		t.Errorf("tick = %d, want 0 after load", s.Tick())
	}
	f := s.Frame()
	if f.X[4] != 50 || f.Y[4] != 50 {
		t.Errorf("agent 4 at (%v, %v), want (50, 50)", f.X[4], f.Y[4])
	}
}

func TestLoadFallback(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	if err := s.Load(writeRun(t, "-1 120 80\n")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := s.Params()
	if p.Population != 50 {
		t.Errorf("population = %d, want fallback 50", p.Population)
	}
	if p.Width != 120 || p.Height != 80 {
		t.Errorf("arena = %vx%v, want 120x80", p.Width, p.Height)
	}
	// fields missing from the header keep their current values
	if p.Scope != 24 {
		t.Errorf("scope = %v, want 24", p.Scope)
	}
}

func TestLoadErrorsLeaveState(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	s.Step()
	before := s.Frame()

	err := s.Load(filepath.Join(t.TempDir(), "missing.run"))
	if !errors.Is(err, runfile.ErrUnreadable) {
		t.Errorf("missing file = %v, want ErrUnreadable", err)
	}
	err = s.Load(writeRun(t, "-1 0 100\n"))
	if !errors.Is(err, state.ErrInvalidParams) {
		t.Errorf("zero arena = %v, want ErrInvalidParams", err)
	}

	after := s.Frame()
	if s.Tick() != 1 || !slices.Equal(before.X, after.X) {
		t.Error("failed load changed the simulation")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	a := newSim(t, testConfig(t), quietOptions(1))
	for range 4 {
		a.Step()
	}
	path := filepath.Join(t.TempDir(), "out.run")
	if err := a.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b := newSim(t, testConfig(t), quietOptions(99))
	if err := b.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fa, fb := a.Frame(), b.Frame()
	if !slices.Equal(fa.X, fb.X) || !slices.Equal(fa.Y, fb.Y) {
		t.Error("positions differ after round trip")
	}
	if a.Params().Population != b.Params().Population {
		t.Error("population differs after round trip")
	}
}

func TestCluster(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	if err := s.Load(writeRun(t, squareRun)); err != nil {
		t.Fatal(err)
	}

	var clustered int
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventClustered && ev.Census != nil {
			clustered++
		}
	})

	res, census, err := s.Cluster(3, 3)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if !reflect.DeepEqual(res.Clusters, [][]int{{0, 1, 2, 3}}) {
		t.Errorf("clusters = %v", res.Clusters)
	}
	if !reflect.DeepEqual(res.Ambiguous, []int{4}) {
		t.Errorf("ambiguous = %v", res.Ambiguous)
	}
	if census.Clusters != 1 || census.Cores != 4 || census.Tick != 0 {
		t.Errorf("census = %+v", census)
	}
	if clustered != 1 {
		t.Errorf("clustered events = %d, want 1", clustered)
	}
	if got := s.Frame().Clusters; !reflect.DeepEqual(got, res.Clusters) {
		t.Errorf("frame clusters = %v", got)
	}

	s.ResetClusters()
	if r, c := s.LastClusters(); r != nil || c != nil {
		t.Error("clusters kept after reset")
	}
	if s.Frame().Clusters != nil {
		t.Error("frame clusters kept after reset")
	}
}

func TestClusterRejectsInvalid(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	if _, _, err := s.Cluster(0, 3); err == nil {
		t.Error("expected error for zero radius")
	}
	if _, _, err := s.Cluster(5, 0); err == nil {
		t.Error("expected error for zero min points")
	}
}

func TestAutomaticClustering(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cluster.Every = 2
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	s := newSim(t, cfg, quietOptions(1))

	var at []int64
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventClustered {
			at = append(at, ev.Tick)
		}
	})
	for range 5 {
		s.Step()
	}
	if !reflect.DeepEqual(at, []int64{2, 4}) {
		t.Errorf("clustered at %v, want [2 4]", at)
	}
}

func TestRespawnClearsClusters(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	if _, _, err := s.Cluster(12, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reconfigure(s.Params(), true); err != nil {
		t.Fatal(err)
	}
	if r, _ := s.LastClusters(); r != nil {
		t.Error("clusters survived a respawn")
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	var n int
	unsubscribe := s.Subscribe(func(Event) { n++ })
	s.Step()
	unsubscribe()
	s.Step()
	if n != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", n)
	}
}

func TestFrameIsCopy(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	f := s.Frame()
	x := f.X[0]
	f.X[0] = -1
	if s.Frame().X[0] != x {
		t.Error("frame shares memory with the simulation")
	}
}

func TestRunTickBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.MaxTicks = 5
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	s := newSim(t, cfg, quietOptions(1))

	if err := s.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Tick() != 5 || !s.Done() {
		t.Errorf("tick = %d, done = %v", s.Tick(), s.Done())
	}
}

func TestRunPaced(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.MaxTicks = 3
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	s := newSim(t, cfg, quietOptions(1))

	if err := s.Run(context.Background(), 1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Tick() != 3 {
		t.Errorf("tick = %d, want 3", s.Tick())
	}
}

func TestRunCancel(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventTick && ev.Tick >= 3 {
			cancel()
		}
	})

	err := s.Run(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if s.Tick() != 3 {
		t.Errorf("tick = %d, want 3", s.Tick())
	}
}

func TestPauseAndStepOnce(t *testing.T) {
	s := newSim(t, testConfig(t), quietOptions(1))
	ticks := make(chan int64, 64)
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventTick {
			select {
			case ticks <- ev.Tick:
			default:
			}
		}
	})
	waitTick := func() int64 {
		t.Helper()
		select {
		case tick := <-ticks:
			return tick
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a tick")
			return 0
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)

	s.Pause()
	go func() { done <- s.Run(ctx, 0) }()

	s.StepOnce()
	s.StepOnce()
	if got := waitTick(); got != 1 {
		t.Errorf("first step = %d", got)
	}
	if got := waitTick(); got != 2 {
		t.Errorf("second step = %d", got)
	}
	time.Sleep(50 * time.Millisecond)
	if s.Tick() != 2 || !s.Paused() {
		t.Errorf("paused loop moved on: tick = %d, paused = %v", s.Tick(), s.Paused())
	}

	s.Resume()
	if got := waitTick(); got != 3 {
		t.Errorf("resumed at %d, want 3", got)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestOutputFiles(t *testing.T) {
	dir := t.TempDir()
	opts := quietOptions(1)
	opts.OutputDir = dir
	s, err := New(testConfig(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		s.Step()
	}
	if _, _, err := s.Cluster(12, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := func(name string) []string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}
	if got := lines("stats.csv"); len(got) != 3 {
		t.Errorf("stats.csv has %d lines, want header and 2 windows", len(got))
	}
	if got := lines("perf.csv"); len(got) != 3 {
		t.Errorf("perf.csv has %d lines, want 3", len(got))
	}
	if got := lines("clusters.csv"); len(got) != 2 {
		t.Errorf("clusters.csv has %d lines, want 2", len(got))
	}
	if _, err := config.Load(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config copy does not load: %v", err)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := quietOptions(1)
	opts.Registerer = reg
	s := newSim(t, testConfig(t), opts)

	for range 3 {
		s.Step()
	}
	if got := testutil.ToFloat64(s.metrics.Ticks); got != 3 {
		t.Errorf("ticks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(s.metrics.Agents); got != 300 {
		t.Errorf("agents = %v, want 300", got)
	}

	p := s.Params()
	p.Population = 100
	if _, err := s.Reconfigure(p, false); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(s.metrics.Reconfigurations.WithLabelValues("true")); got != 1 {
		t.Errorf("respawning reconfigurations = %v, want 1", got)
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	p := ParamsFromConfig(cfg)
	if p.Population != 300 || p.Width != 200 || p.Scope != 24 || p.MaxTicks != -1 {
		t.Errorf("params = %+v", p)
	}
	if p.Alpha != config.DegToRad(180) || p.Beta != config.DegToRad(17) {
		t.Errorf("angles = %v, %v", p.Alpha, p.Beta)
	}
}

func BenchmarkStep(b *testing.B) {
	cfg := config.Defaults()
	s, err := New(cfg, Options{Seed: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Step()
	}
}

func TestWindowLogsIndexStats(t *testing.T) {
	var buf bytes.Buffer
	opts := quietOptions(1)
	opts.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newSim(t, testConfig(t), opts)

	for range 5 {
		s.Step()
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"spatial index"`) {
		t.Fatalf("no spatial index record in %s", out)
	}
	// 200/24 gives an 8x8 grid
	if !strings.Contains(out, `"cells":64`) {
		t.Errorf("index stats missing cell count: %s", out)
	}
}
