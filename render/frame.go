// Package render gives rendering collaborators a read-only view of the
// particle system and exports frames as PNG images.
package render

import (
	"slices"

	"github.com/blobject/emergence-sub000/state"
)

// Frame is a consistent copy of everything a renderer reads: arena size,
// agent positions, headings, colour channels and the last cluster result.
// It does not alias the simulation's storage and may be used after the
// simulation has moved on.
type Frame struct {
	Tick           int64
	Width, Height  float32
	ParticleRadius float32

	X, Y    []float32
	Heading []float32
	Kind    []state.Kind

	Red, Green, Blue []float32
	Opacity          []float32

	// Clusters holds agent indices of the last clustering pass, if any.
	Clusters [][]int
}

// Capture copies the renderable state of s.
func Capture(s *state.State, tick int64, clusters [][]int) Frame {
	f := Frame{
		Tick:           tick,
		Width:          s.Width,
		Height:         s.Height,
		ParticleRadius: s.ParticleRadius,
		X:              slices.Clone(s.X),
		Y:              slices.Clone(s.Y),
		Heading:        slices.Clone(s.F),
		Kind:           slices.Clone(s.Kind),
		Red:            slices.Clone(s.Red),
		Green:          slices.Clone(s.Green),
		Blue:           slices.Clone(s.Blue),
		Opacity:        slices.Clone(s.Opacity),
	}
	if clusters != nil {
		f.Clusters = make([][]int, len(clusters))
		for i, c := range clusters {
			f.Clusters[i] = slices.Clone(c)
		}
	}
	return f
}

// Len returns the number of agents in the frame.
func (f Frame) Len() int { return len(f.X) }
