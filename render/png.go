package render

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// Options control frame export.
type Options struct {
	Scale  float64 // pixels per arena unit
	Ghosts bool    // draw copies of discs that straddle a wrap seam
	Label  bool    // print the tick number in the top-left corner
}

// DefaultOptions returns 1:1 export with ghosts and label.
func DefaultOptions() Options {
	return Options{Scale: 1, Ghosts: true, Label: true}
}

func draw(f *Frame, opt Options) (*gg.Context, error) {
	if !(opt.Scale > 0) {
		return nil, fmt.Errorf("render: scale %g must be positive", opt.Scale)
	}
	w := max(1, int(math.Ceil(float64(f.Width)*opt.Scale)))
	h := max(1, int(math.Ceil(float64(f.Height)*opt.Scale)))

	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	vp := NewViewport(float32(w), float32(h), f.Width, f.Height)
	vp.Zoom = float32(opt.Scale)

	radius := max(0.5, float64(f.ParticleRadius)*opt.Scale)
	var ghosts [3]Point
	for i := range f.X {
		dc.SetRGBA(channel(f.Red, i), channel(f.Green, i), channel(f.Blue, i), opacity(f.Opacity, i))
		sx, sy := vp.WorldToScreen(f.X[i], f.Y[i])
		dc.DrawCircle(float64(sx), float64(sy), radius)
		dc.Fill()
		if !opt.Ghosts {
			continue
		}
		n := vp.Ghosts(f.X[i], f.Y[i], f.ParticleRadius, &ghosts)
		for _, g := range ghosts[:n] {
			dc.DrawCircle(float64(g.X), float64(g.Y), radius)
			dc.Fill()
		}
	}

	if opt.Label {
		dc.SetRGB(1, 1, 1)
		dc.DrawString(fmt.Sprintf("tick %d  agents %d  clusters %d", f.Tick, f.Len(), len(f.Clusters)), 4, 14)
	}
	return dc, nil
}

func channel(c []float32, i int) float64 {
	if i < len(c) {
		return float64(c[i])
	}
	return 1
}

func opacity(o []float32, i int) float64 {
	if i < len(o) && o[i] > 0 {
		return float64(o[i])
	}
	return 1
}

// Image draws f and returns the image.
func Image(f *Frame, opt Options) (image.Image, error) {
	dc, err := draw(f, opt)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// Encode draws f and writes it to w as PNG.
func Encode(w io.Writer, f *Frame, opt Options) error {
	dc, err := draw(f, opt)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

// SavePNG draws f and writes it to path.
func SavePNG(path string, f *Frame, opt Options) error {
	dc, err := draw(f, opt)
	if err != nil {
		return err
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("saving frame: %w", err)
	}
	return nil
}
