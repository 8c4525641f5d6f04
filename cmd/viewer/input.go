package main

import rl "github.com/gen2brain/raylib-go/raylib"

// handleInput processes keyboard and mouse input.
func (v *viewer) handleInput() {
	// Window resize propagation
	v.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		v.togglePause()
	}
	if rl.IsKeyPressed(rl.KeyN) {
		v.sim.StepOnce()
	}
	if rl.IsKeyPressed(rl.KeyC) {
		v.cluster()
	}
	if rl.IsKeyPressed(rl.KeyX) {
		v.sim.ResetClusters()
		v.census = nil
	}
	if rl.IsKeyPressed(rl.KeyR) {
		v.reconfigure(v.sim.Params(), true)
	}
	if rl.IsKeyPressed(rl.KeyLeftBracket) {
		v.applyPattern(v.pattern - 1)
	}
	if rl.IsKeyPressed(rl.KeyRightBracket) {
		v.applyPattern(v.pattern + 1)
	}
	if rl.IsKeyPressed(rl.KeyK) {
		v.nextScheme()
	}
	if rl.IsKeyPressed(rl.KeyG) {
		v.ghosts = !v.ghosts
	}
	if rl.IsKeyPressed(rl.KeyS) {
		v.save()
	}

	v.handleViewportInput()
}

func (v *viewer) togglePause() {
	if v.sim.Paused() {
		v.sim.Resume()
	} else {
		v.sim.Pause()
	}
}

// handleResize checks for window resize and propagates new dimensions.
func (v *viewer) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w := float32(rl.GetScreenWidth() - panelWidth)
	h := float32(rl.GetScreenHeight())
	if w == v.screenW && h == v.screenH {
		return
	}
	v.screenW = w
	v.screenH = h
	v.vp.Resize(w, h)
}

// handleViewportInput processes pan/zoom controls. The mouse only acts over
// the arena, not the panel.
func (v *viewer) handleViewportInput() {
	// Pan is in screen pixels, so speed feels the same at every zoom
	const panSpeed = 8

	// Arrow key panning
	if rl.IsKeyDown(rl.KeyRight) {
		v.vp.Pan(panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		v.vp.Pan(-panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		v.vp.Pan(0, panSpeed)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		v.vp.Pan(0, -panSpeed)
	}

	mouse := rl.GetMousePosition()
	overArena := mouse.X < v.screenW

	if wheel := rl.GetMouseWheelMove(); wheel != 0 && overArena {
		v.vp.ZoomBy(1 + wheel*0.1)
	}
	if overArena && rl.IsMouseButtonDown(rl.MouseButtonLeft) {
		d := rl.GetMouseDelta()
		v.vp.Pan(-d.X, -d.Y)
	}

	// Keyboard zoom with +/- (= and - keys)
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		v.vp.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		v.vp.ZoomBy(0.8)
	}

	// Home key to reset the view
	if rl.IsKeyPressed(rl.KeyHome) {
		v.vp.Reset()
	}
}
