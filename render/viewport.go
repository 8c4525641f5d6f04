package render

import "github.com/blobject/emergence-sub000/state"

// Point is a position in screen or arena coordinates.
type Point struct{ X, Y float32 }

// Viewport maps the toroidal arena onto a screen. It supports pan and zoom;
// everything is drawn at its shortest wrapped offset from the centre.
type Viewport struct {
	// Centre in arena coordinates
	X, Y float32

	// Zoom level (1.0 = one pixel per arena unit)
	Zoom float32

	ScreenW, ScreenH float32
	WorldW, WorldH   float32

	MinZoom, MaxZoom float32
}

// NewViewport creates a viewport centred on the arena at the zoom that fits the
// whole arena on screen.
func NewViewport(screenW, screenH, worldW, worldH float32) *Viewport {
	v := &Viewport{
		X:       worldW / 2,
		Y:       worldH / 2,
		ScreenW: screenW,
		ScreenH: screenH,
		WorldW:  worldW,
		WorldH:  worldH,
		MaxZoom: 16,
	}
	v.updateMinZoom()
	v.Zoom = v.FitZoom()
	return v
}

// FitZoom returns the zoom at which the whole arena is visible.
func (v *Viewport) FitZoom() float32 {
	return min(v.ScreenW/v.WorldW, v.ScreenH/v.WorldH)
}

// The viewer may zoom out until the arena fits, never further.
func (v *Viewport) updateMinZoom() {
	v.MinZoom = v.FitZoom()
	if v.MaxZoom < v.MinZoom {
		v.MaxZoom = v.MinZoom
	}
}

// WorldToScreen converts arena coordinates to screen coordinates using the
// shortest wrapped offset from the viewport centre.
func (v *Viewport) WorldToScreen(wx, wy float32) (sx, sy float32) {
	dx := wrappedDelta(wx, v.X, v.WorldW)
	dy := wrappedDelta(wy, v.Y, v.WorldH)
	return v.ScreenW/2 + dx*v.Zoom, v.ScreenH/2 + dy*v.Zoom
}

// ScreenToWorld converts screen coordinates to arena coordinates.
func (v *Viewport) ScreenToWorld(sx, sy float32) (wx, wy float32) {
	dx := (sx - v.ScreenW/2) / v.Zoom
	dy := (sy - v.ScreenH/2) / v.Zoom
	return state.Wrap(v.X+dx, v.WorldW), state.Wrap(v.Y+dy, v.WorldH)
}

// IsVisible reports whether a disc at (wx, wy) may overlap the screen.
func (v *Viewport) IsVisible(wx, wy, radius float32) bool {
	dx := wrappedDelta(wx, v.X, v.WorldW)
	dy := wrappedDelta(wy, v.Y, v.WorldH)
	halfW := v.ScreenW/(2*v.Zoom) + radius
	halfH := v.ScreenH/(2*v.Zoom) + radius
	return abs(dx) <= halfW && abs(dy) <= halfH
}

// Ghosts writes the extra screen positions at which a disc straddling a wrap
// seam must also be drawn, and returns how many were written. A disc in a
// corner needs three copies.
func (v *Viewport) Ghosts(wx, wy, radius float32, out *[3]Point) int {
	halfW := v.ScreenW / (2 * v.Zoom)
	halfH := v.ScreenH / (2 * v.Zoom)
	dx := wrappedDelta(wx, v.X, v.WorldW)
	dy := wrappedDelta(wy, v.Y, v.WorldH)

	gx, okX := ghostOffset(dx, halfW, radius, v.WorldW)
	gy, okY := ghostOffset(dy, halfH, radius, v.WorldH)

	sx := v.ScreenW/2 + dx*v.Zoom
	sy := v.ScreenH/2 + dy*v.Zoom
	n := 0
	if okX {
		out[n] = Point{v.ScreenW/2 + gx*v.Zoom, sy}
		n++
	}
	if okY {
		out[n] = Point{sx, v.ScreenH/2 + gy*v.Zoom}
		n++
	}
	if okX && okY {
		out[n] = Point{v.ScreenW/2 + gx*v.Zoom, v.ScreenH/2 + gy*v.Zoom}
		n++
	}
	return n
}

func ghostOffset(d, half, radius, span float32) (float32, bool) {
	if g := d - span; g+radius > -half {
		return g, true
	}
	if g := d + span; g-radius < half {
		return g, true
	}
	return 0, false
}

// Resize updates the screen dimensions and re-clamps the zoom.
func (v *Viewport) Resize(screenW, screenH float32) {
	if screenW == v.ScreenW && screenH == v.ScreenH {
		return
	}
	v.ScreenW = screenW
	v.ScreenH = screenH
	v.updateMinZoom()
	v.SetZoom(v.Zoom)
}

// SetWorld changes the arena dimensions, for example after a reconfiguration,
// and recentres the viewport.
func (v *Viewport) SetWorld(worldW, worldH float32) {
	if worldW == v.WorldW && worldH == v.WorldH {
		return
	}
	v.WorldW = worldW
	v.WorldH = worldH
	v.updateMinZoom()
	v.Reset()
}

// Pan moves the centre by a screen-pixel delta, wrapping around the arena.
func (v *Viewport) Pan(dx, dy float32) {
	v.X = state.Wrap(v.X+dx/v.Zoom, v.WorldW)
	v.Y = state.Wrap(v.Y+dy/v.Zoom, v.WorldH)
}

// SetZoom sets the zoom level, clamped to min/max.
func (v *Viewport) SetZoom(zoom float32) {
	v.Zoom = max(v.MinZoom, min(zoom, v.MaxZoom))
}

// ZoomBy multiplies the current zoom by factor.
func (v *Viewport) ZoomBy(factor float32) {
	v.SetZoom(v.Zoom * factor)
}

// Reset recentres the viewport and fits the arena on screen.
func (v *Viewport) Reset() {
	v.X = v.WorldW / 2
	v.Y = v.WorldH / 2
	v.Zoom = v.FitZoom()
}

// wrappedDelta is the shortest signed offset from from to to on an axis of
// length span.
func wrappedDelta(to, from, span float32) float32 {
	d := to - from
	if d > span/2 {
		d -= span
	} else if d < -span/2 {
		d += span
	}
	return d
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
