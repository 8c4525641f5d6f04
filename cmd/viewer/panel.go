package main

import (
	"fmt"
	"time"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/blobject/emergence-sub000/config"
	"github.com/blobject/emergence-sub000/telemetry"
)

const panelWidth = 300

// slider draws a labelled slider and returns its new value.
func slider(x float32, y *float32, label, format string, value, lo, hi float32) float32 {
	rl.DrawText(label, int32(x), int32(*y), 14, rl.Gray)
	*y += 18
	next := gui.SliderBar(
		rl.Rectangle{X: x, Y: *y, Width: float32(panelWidth - 90), Height: 20},
		"", "",
		value, lo, hi,
	)
	rl.DrawText(fmt.Sprintf(format, value), int32(x+float32(panelWidth-80)), int32(*y+2), 16, rl.DarkGray)
	*y += 30
	return next
}

// drawPanel renders the control panel to the right of the arena and applies
// whatever the user changed.
func (v *viewer) drawPanel() {
	x := v.screenW
	rl.DrawRectangle(int32(x), 0, panelWidth, int32(v.screenH), rl.RayWhite)

	panelX := x + 12
	panelY := float32(10)
	rl.DrawText("Motion", int32(panelX), int32(panelY), 20, rl.DarkGray)
	panelY += 30

	p := v.sim.Params()
	changed := false

	if a := slider(panelX, &panelY, "Alpha (fixed turn, deg)", "%.0f", v.alphaDeg, -180, 180); a != v.alphaDeg {
		v.alphaDeg = a
		p.Alpha = config.DegToRad(float64(a))
		changed = true
	}
	if b := slider(panelX, &panelY, "Beta (turn per neighbour, deg)", "%.1f", v.betaDeg, -60, 60); b != v.betaDeg {
		v.betaDeg = b
		p.Beta = config.DegToRad(float64(b))
		changed = true
	}
	maxScope := min(p.Width, p.Height) / 4
	if s := slider(panelX, &panelY, "Scope (neighbour radius)", "%.1f", p.Scope, 1, maxScope); s != p.Scope {
		p.Scope = s
		changed = true
	}
	if s := slider(panelX, &panelY, "Speed (step per tick)", "%.1f", p.Speed, 0, 20); s != p.Speed {
		p.Speed = s
		changed = true
	}
	if n := slider(panelX, &panelY, "Noise (heading jitter, deg)", "%.1f", v.noiseDeg, 0, 90); n != v.noiseDeg {
		v.noiseDeg = n
		p.Noise = config.DegToRad(float64(n))
		changed = true
	}
	if changed {
		v.reconfigure(p, false)
	}

	// Buttons
	panelY += 5
	button := func(col int, label string) bool {
		return gui.Button(rl.Rectangle{X: panelX + float32(col)*140, Y: panelY, Width: 130, Height: 28}, label)
	}
	if button(0, toggleText(v.sim.Paused(), "Resume", "Pause")) {
		v.togglePause()
	}
	if button(1, "Step") {
		v.sim.StepOnce()
	}
	panelY += 36
	if button(0, "Cluster") {
		v.cluster()
	}
	if button(1, "Reset clusters") {
		v.sim.ResetClusters()
		v.census = nil
	}
	panelY += 36
	if button(0, "Respawn") {
		v.reconfigure(p, true)
	}
	if button(1, "Randomize") {
		v.randomize()
	}
	panelY += 36
	if button(0, "< Pattern") {
		v.applyPattern(v.pattern - 1)
	}
	if button(1, "Pattern >") {
		v.applyPattern(v.pattern + 1)
	}
	panelY += 36
	if button(0, "Colour: "+v.scheme.String()) {
		v.nextScheme()
	}
	if button(1, "Save") {
		v.save()
	}
	panelY += 36
	v.ghosts = gui.CheckBox(rl.Rectangle{X: panelX, Y: panelY, Width: 20, Height: 20}, "Wrap ghosts", v.ghosts)
	panelY += 34

	v.drawPerf(panelX, panelY)
	rl.DrawText("Space pause  N step  C cluster  R respawn", int32(panelX), int32(v.screenH-40), 12, rl.LightGray)
	rl.DrawText("[ ] pattern  K colour  S save  Home reset view", int32(panelX), int32(v.screenH-24), 12, rl.LightGray)
}

// drawPerf shows the tick phase breakdown.
func (v *viewer) drawPerf(x, y float32) {
	stats := v.sim.PerfStats()
	rl.DrawText("Performance", int32(x), int32(y), 20, rl.DarkGray)
	y += 26
	rl.DrawText(fmt.Sprintf("%.0f ticks/s  %.0f fps  avg %s",
		stats.TicksPerSecond, stats.FPS, stats.AvgTickDuration.Round(time.Microsecond)), int32(x), int32(y), 14, rl.Gray)
	y += 20
	for _, phase := range telemetry.Phases {
		rl.DrawText(fmt.Sprintf("%-14s %5.1f%%", phase, stats.PhasePct[phase]), int32(x), int32(y), 14, rl.Gray)
		y += 16
	}
}

func toggleText(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
