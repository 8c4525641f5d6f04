package main

import (
	"fmt"
	"math"
	"math/rand"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/render"
	"github.com/blobject/emergence-sub000/sim"
	"github.com/blobject/emergence-sub000/state"
)

// viewer owns the window state. The simulation runs on its own goroutine and
// the viewer only reads frames and sends parameter changes.
type viewer struct {
	sim      *sim.Simulation
	cfg      *config.Config
	vp       *render.Viewport
	frame    render.Frame
	rng      *rand.Rand
	savePath string

	screenW, screenH float32

	pattern int
	scheme  analysis.Scheme
	ghosts  bool
	census  *analysis.Census
	status  string
	events  chan sim.Event

	// slider values in degrees
	alphaDeg, betaDeg, noiseDeg float32
}

func newViewer(s *sim.Simulation, cfg *config.Config, seed int64, savePath string) *viewer {
	p := s.Params()
	scheme, _ := analysis.ParseScheme(cfg.Render.Coloring)
	w := float32(rl.GetScreenWidth() - panelWidth)
	h := float32(rl.GetScreenHeight())

	v := &viewer{
		sim:      s,
		cfg:      cfg,
		vp:       render.NewViewport(w, h, p.Width, p.Height),
		rng:      rand.New(rand.NewSource(seed)),
		savePath: savePath,
		screenW:  w,
		screenH:  h,
		scheme:   scheme,
		ghosts:   cfg.Render.Ghosts,
		events:   make(chan sim.Event, 64),
	}
	v.syncSliders(p)

	s.Subscribe(v.onEvent)
	return v
}

// onEvent runs on the simulation goroutine and hands events to the draw loop.
// Ticks are left out; the frame carries the tick number.
func (v *viewer) onEvent(ev sim.Event) {
	if ev.Kind == sim.EventTick {
		return
	}
	select {
	case v.events <- ev:
	default:
	}
}

func (v *viewer) handleEvent(ev sim.Event) {
	switch ev.Kind {
	case sim.EventClustered:
		v.census = ev.Census
	case sim.EventReconfigured:
		if ev.Respawned {
			v.census = nil
		}
	case sim.EventWindow:
		for _, bm := range ev.Bookmarks {
			v.status = fmt.Sprintf("tick %d: %s", bm.Tick, bm.Description)
		}
	}
}

func (v *viewer) syncSliders(p state.Params) {
	v.alphaDeg = toDeg(p.Alpha)
	v.betaDeg = toDeg(p.Beta)
	v.noiseDeg = toDeg(p.Noise)
}

// Update handles input and pulls the latest frame.
func (v *viewer) Update() {
	for drained := false; !drained; {
		select {
		case ev := <-v.events:
			v.handleEvent(ev)
		default:
			drained = true
		}
	}
	v.handleInput()
	v.sim.RecordFrame()
	v.frame = v.sim.Frame()
	if v.frame.Width != v.vp.WorldW || v.frame.Height != v.vp.WorldH {
		v.vp.SetWorld(v.frame.Width, v.frame.Height)
	}
}

// Draw renders the arena, the HUD and the control panel.
func (v *viewer) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	rl.BeginScissorMode(0, 0, int32(v.screenW), int32(v.screenH))
	v.drawAgents()
	v.drawHUD()
	rl.EndScissorMode()

	v.drawPanel()
	rl.EndDrawing()
}

func (v *viewer) drawAgents() {
	f := &v.frame
	radius := max(1, f.ParticleRadius*v.vp.Zoom)
	var ghosts [3]render.Point
	for i := range f.X {
		n := 0
		if v.ghosts {
			n = v.vp.Ghosts(f.X[i], f.Y[i], f.ParticleRadius, &ghosts)
		}
		visible := v.vp.IsVisible(f.X[i], f.Y[i], f.ParticleRadius)
		if !visible && n == 0 {
			continue
		}
		color := rl.Color{
			R: unit(f.Red[i]),
			G: unit(f.Green[i]),
			B: unit(f.Blue[i]),
			A: unit(f.Opacity[i]),
		}
		if visible {
			sx, sy := v.vp.WorldToScreen(f.X[i], f.Y[i])
			rl.DrawCircleV(rl.Vector2{X: sx, Y: sy}, radius, color)
		}
		for _, g := range ghosts[:n] {
			rl.DrawCircleV(rl.Vector2{X: g.X, Y: g.Y}, radius, color)
		}
	}
}

func (v *viewer) drawHUD() {
	kinds := analysis.CountKinds(v.frame.Kind)
	rl.DrawText(fmt.Sprintf("Tick: %d", v.frame.Tick), 10, 10, 20, rl.White)
	rl.DrawText(fmt.Sprintf("Agents: %d  Spores: %d  Cells: %d",
		v.frame.Len(), kinds[state.KindMatureSpore], kinds[state.KindCellHull]+kinds[state.KindCellCore]), 10, 35, 20, rl.White)
	if c := v.census; c != nil {
		rl.DrawText(fmt.Sprintf("Clusters: %d  (spore %d, cell %d)", c.Clusters, c.SporeClusters, c.CellClusters), 10, 60, 20, rl.White)
	}
	if v.sim.Paused() {
		rl.DrawText("PAUSED", 10, 85, 20, rl.Yellow)
	}
	if v.status != "" {
		rl.DrawText(v.status, 10, int32(v.screenH)-26, 16, rl.LightGray)
	}
	rl.DrawFPS(int32(v.screenW)-90, 10)
}

// reconfigure sends the slider values to the simulation.
func (v *viewer) reconfigure(p state.Params, force bool) {
	if _, err := v.sim.Reconfigure(p, force); err != nil {
		v.status = err.Error()
		return
	}
	v.syncSliders(v.sim.Params())
}

// applyPattern switches to preset i and keeps the current agents.
func (v *viewer) applyPattern(i int) {
	i = (i + len(config.Patterns)) % len(config.Patterns)
	if err := v.cfg.ApplyPattern(i); err != nil {
		v.status = err.Error()
		return
	}
	v.pattern = i
	p := v.sim.Params()
	p.Alpha = v.cfg.Derived.Alpha
	p.Beta = v.cfg.Derived.Beta
	v.reconfigure(p, false)
	v.status = config.Patterns[i].Name
}

// randomize draws new motion parameters scaled to the arena.
func (v *viewer) randomize() {
	p := v.sim.Params()
	v.cfg.World.Width, v.cfg.World.Height = float64(p.Width), float64(p.Height)
	v.cfg.Randomize(v.rng)
	p.Alpha = v.cfg.Derived.Alpha
	p.Beta = v.cfg.Derived.Beta
	p.Scope = float32(v.cfg.Motion.Scope)
	p.Speed = float32(v.cfg.Motion.Speed)
	v.reconfigure(p, false)
	v.status = fmt.Sprintf("alpha %.0f  beta %.0f  scope %.1f  speed %.1f",
		v.cfg.Motion.AlphaDeg, v.cfg.Motion.BetaDeg, v.cfg.Motion.Scope, v.cfg.Motion.Speed)
}

func (v *viewer) cluster() {
	if _, _, err := v.sim.Cluster(float32(v.cfg.Cluster.Radius), v.cfg.Cluster.MinPts); err != nil {
		v.status = err.Error()
	}
}

func (v *viewer) setScheme(s analysis.Scheme) {
	v.scheme = s
	v.sim.SetScheme(s)
}

// nextScheme cycles normal, dynamic, cluster and density colouring.
func (v *viewer) nextScheme() {
	next := analysis.Scheme{Mode: (v.scheme.Mode + 1) % (analysis.ModeDensity + 1)}
	if next.Mode == analysis.ModeDensity {
		next.Threshold = uint32(v.cfg.Cluster.MinPts)
	}
	v.setScheme(next)
}

func (v *viewer) save() {
	if err := v.sim.Save(v.savePath); err != nil {
		v.status = err.Error()
		return
	}
	v.status = "saved " + v.savePath
}

func toDeg(rad float32) float32 { return rad * 180 / math.Pi }

func unit(c float32) uint8 {
	return uint8(math.Round(float64(min(max(c, 0), 1)) * 255))
}
