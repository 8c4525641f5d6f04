// Package sim drives the particle system: it owns the state, runs ticks on a
// backend, clusters on demand, records telemetry and notifies subscribers.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/cluster"
	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/render"
	"github.com/blobject/emergence-sub000/state"
	"github.com/blobject/emergence-sub000/systems"
	"github.com/blobject/emergence-sub000/telemetry"
)

// Simulation is safe for concurrent use. Step, Reconfigure, Load and Cluster
// serialise on one lock; readers such as Frame see a consistent state between
// ticks.
type Simulation struct {
	mu sync.Mutex

	cfg     *config.Config
	st      *state.State
	backend systems.Backend
	idx     *systems.SpatialIndex
	rng     *rand.Rand
	noise   []float32
	tick    int64

	// Clustering
	engine     *cluster.Engine
	clusters   *cluster.Result
	census     *analysis.Census
	membership []int
	scheme     analysis.Scheme
	palette    *analysis.Palette

	// Telemetry
	runID       string
	logger      *slog.Logger
	logStats    bool
	perf        *telemetry.PerfCollector
	collector   *telemetry.Collector
	bookmarks   *telemetry.BookmarkDetector
	output      *telemetry.OutputManager
	metrics     *telemetry.Metrics
	snapshotDir string

	// Subscribers
	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	// Run loop control
	paused  atomic.Bool
	pending atomic.Int64
	wake    chan struct{}
}

// New creates a simulation with a random population described by cfg.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	params := ParamsFromConfig(cfg)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	scheme, err := analysis.ParseScheme(cfg.Render.Coloring)
	if err != nil {
		return nil, err
	}
	backend, err := systems.NewBackend(cfg.Backend.Kind, cfg.Backend.Workers)
	if err != nil {
		return nil, err
	}

	if opts.SnapshotDir != "" {
		if err := os.MkdirAll(opts.SnapshotDir, 0755); err != nil {
			backend.Close()
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		backend.Close()
		output.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	rng := rand.New(rand.NewSource(opts.Seed))

	s := &Simulation{
		cfg:         cfg,
		st:          state.New(params, rng),
		backend:     backend,
		idx:         systems.NewSpatialIndex(),
		rng:         rng,
		engine:      cluster.NewEngine(),
		scheme:      scheme,
		palette:     analysis.NewPalette(rand.New(rand.NewSource(opts.Seed + 1))),
		runID:       runID,
		logger:      logger.With("run_id", runID),
		logStats:    opts.LogStats,
		perf:        telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector:   telemetry.NewCollector(cfg.Telemetry.StatsWindow),
		bookmarks:   telemetry.NewBookmarkDetector(cfg.Bookmarks, cfg.Telemetry.BookmarkHistorySize),
		output:      output,
		snapshotDir: opts.SnapshotDir,
		subs:        make(map[int]func(Event)),
		wake:        make(chan struct{}, 1),
	}
	if opts.Registerer != nil {
		s.metrics = telemetry.NewMetrics(opts.Registerer)
	}
	s.refreshLocked()

	s.logger.Info("simulation created",
		"agents", params.Population,
		"width", params.Width,
		"height", params.Height,
		"backend", backend.Name(),
		"coloring", scheme.String(),
		"seed", opts.Seed,
	)
	return s, nil
}

// Close stops the backend workers and closes the telemetry output.
func (s *Simulation) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.Close()
	return s.output.Close()
}

// Step advances the simulation by one tick.
func (s *Simulation) Step() {
	s.mu.Lock()
	events := s.stepLocked()
	s.mu.Unlock()
	s.emit(events)
}

func (s *Simulation) stepLocked() []Event {
	a := &s.st.Agents
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseSpatialIndex)
	s.idx.Build(s.st.X, s.st.Y, s.st.Width, s.st.Height, s.st.Scope)

	s.perf.StartPhase(telemetry.PhaseSeek)
	s.backend.Seek(s.idx, a, systems.SeekParamsOf(s.st))

	s.perf.StartPhase(telemetry.PhaseMove)
	s.backend.Move(a, systems.MoveParamsOf(s.st), s.drawNoise())

	s.perf.StartPhase(telemetry.PhaseAnalysis)
	analysis.Classify(a)
	s.colorize()

	s.tick++
	events := []Event{{Kind: EventTick, Tick: s.tick}}

	if every := s.cfg.Cluster.Every; every > 0 && s.tick%int64(every) == 0 {
		s.perf.StartPhase(telemetry.PhaseCluster)
		_, census := s.clusterLocked(float32(s.cfg.Cluster.Radius), s.cfg.Cluster.MinPts)
		events = append(events, Event{Kind: EventClustered, Tick: s.tick, Census: &census})
	}

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.collector.RecordTick()
	if ev, ok := s.flushTelemetry(); ok {
		events = append(events, ev)
	}

	s.perf.EndTick()
	s.metrics.ObserveTick(s.perf.Last(), a)
	return events
}

// drawNoise returns per-agent heading jitter for this tick, or nil when the
// noise amplitude is zero. Drawing it here keeps both backends on the same
// random sequence.
func (s *Simulation) drawNoise() []float32 {
	if s.st.Noise == 0 {
		return nil
	}
	n := s.st.Len()
	if cap(s.noise) < n {
		s.noise = make([]float32, n)
	}
	s.noise = s.noise[:n]
	for i := range s.noise {
		s.noise[i] = (s.rng.Float32() - 0.5) * s.st.Noise
	}
	return s.noise
}

func (s *Simulation) colorize() {
	analysis.Colorize(&s.st.Agents, s.scheme, s.st.Scope, s.membership, s.palette)
}

// refreshLocked recomputes tallies, kinds and colours for the current
// positions without moving anything.
func (s *Simulation) refreshLocked() {
	s.idx.Build(s.st.X, s.st.Y, s.st.Width, s.st.Height, s.st.Scope)
	s.backend.Seek(s.idx, &s.st.Agents, systems.SeekParamsOf(s.st))
	analysis.Classify(&s.st.Agents)
	s.colorize()
}

// flushTelemetry closes the stats window if it is due.
func (s *Simulation) flushTelemetry() (Event, bool) {
	if !s.collector.ShouldFlush(s.tick) {
		return Event{}, false
	}

	stats := s.collector.Flush(s.tick, &s.st.Agents)
	perfStats := s.perf.Stats()

	if s.logStats {
		s.logger.Info("stats", "window", stats, "perf", perfStats)
	}
	s.logger.Debug("spatial index", "tick", s.tick, "index", s.idx.Stats())
	if err := s.output.WriteStats(stats); err != nil {
		s.logger.Error("failed to write stats", "error", err)
	}
	if err := s.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}

	bookmarks := s.bookmarks.Check(stats)
	for _, bm := range bookmarks {
		s.logger.Info("bookmark", "type", string(bm.Type), "tick", bm.Tick, "description", bm.Description)
		if err := s.output.WriteBookmark(bm); err != nil {
			s.logger.Error("failed to write bookmark", "error", err)
		}
		if s.snapshotDir != "" {
			s.saveSnapshot(bm)
		}
	}

	return Event{Kind: EventWindow, Tick: s.tick, Stats: &stats, Bookmarks: bookmarks}, true
}

// Cluster runs a clustering pass over the current positions and recolours the
// agents if the cluster scheme is active.
func (s *Simulation) Cluster(radius float32, minPts int) (cluster.Result, analysis.Census, error) {
	if !(radius > 0) || minPts < 1 {
		return cluster.Result{}, analysis.Census{}, fmt.Errorf("cluster: radius %g and min points %d must be positive", radius, minPts)
	}
	s.mu.Lock()
	res, census := s.clusterLocked(radius, minPts)
	s.mu.Unlock()
	s.emit([]Event{{Kind: EventClustered, Tick: census.Tick, Census: &census}})
	return res, census, nil
}

func (s *Simulation) clusterLocked(radius float32, minPts int) (cluster.Result, analysis.Census) {
	start := time.Now()
	res := s.engine.Run(s.st.X, s.st.Y, s.st.Width, s.st.Height, radius, minPts)
	census := analysis.TakeCensus(&res, s.st.Kind)
	census.Tick = s.tick

	s.clusters = &res
	s.census = &census
	s.membership = res.Membership(s.st.Len())
	if s.scheme.Mode == analysis.ModeCluster {
		s.colorize()
	}

	s.collector.RecordCensus(census)
	s.metrics.ObserveCensus(census, time.Since(start))
	if err := s.output.WriteCensus(census); err != nil {
		s.logger.Error("failed to write census", "error", err)
	}
	s.logger.Debug("clustered", "census", census)
	return res, census
}

// ResetClusters forgets the last clustering pass.
func (s *Simulation) ResetClusters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetClustersLocked()
	s.colorize()
}

func (s *Simulation) resetClustersLocked() {
	s.clusters = nil
	s.census = nil
	s.membership = nil
	s.palette.Reset()
	s.collector.ClearCensus()
}

// LastClusters returns the last clustering result and its census, or nils.
func (s *Simulation) LastClusters() (*cluster.Result, *analysis.Census) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusters, s.census
}

// Reconfigure replaces the run parameters. Agents are respawned when force is
// set or when the population or arena size changes; otherwise they keep their
// positions and headings. It reports whether anything changed. Invalid
// parameters leave the simulation untouched.
func (s *Simulation) Reconfigure(p state.Params, force bool) (bool, error) {
	s.mu.Lock()
	changed, respawned, err := s.st.Change(p, force, s.rng)
	if err != nil || !changed {
		s.mu.Unlock()
		return false, err
	}
	if respawned {
		s.resetClustersLocked()
		s.bookmarks.Reset()
	}
	s.refreshLocked()
	s.collector.RecordReconfigure(respawned)
	s.metrics.ObserveReconfigure(respawned)
	tick := s.tick
	s.mu.Unlock()

	s.logger.Info("reconfigured", "tick", tick, "respawned", respawned, "agents", p.Population)
	s.emit([]Event{{Kind: EventReconfigured, Tick: tick, Respawned: respawned}})
	return true, nil
}

// SetScheme changes the colouring scheme.
func (s *Simulation) SetScheme(scheme analysis.Scheme) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheme = scheme
	s.colorize()
}

// Params returns the current run parameters.
func (s *Simulation) Params() state.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Params
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// RunID returns the identifier attached to this simulation's logs.
func (s *Simulation) RunID() string { return s.runID }

// Done reports whether the tick budget is spent.
func (s *Simulation) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.MaxTicks >= 0 && s.tick >= s.st.MaxTicks
}

// Frame returns a copy of the renderable state.
func (s *Simulation) Frame() render.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var clusters [][]int
	if s.clusters != nil {
		clusters = s.clusters.Clusters
	}
	return render.Capture(s.st, s.tick, clusters)
}

// PerfStats returns timing over the recent ticks.
func (s *Simulation) PerfStats() telemetry.PerfStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perf.Stats()
}

// RecordFrame feeds viewer frame timing into the perf collector.
func (s *Simulation) RecordFrame() {
	s.mu.Lock()
	s.perf.RecordFrame()
	s.mu.Unlock()
}
