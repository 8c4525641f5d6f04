package runfile

import (
	"math"
	"math/rand"

	"github.com/blobject/emergence-sub000/state"
)

func toDeg(rad float32) float64 { return float64(rad) * 180 / math.Pi }

func toRad(deg float64) float32 { return float32(deg * math.Pi / 180) }

// HeaderOf converts run parameters to a header.
func HeaderOf(p state.Params) Header {
	return Header{
		Ticks:          p.MaxTicks,
		Width:          p.Width,
		Height:         p.Height,
		AlphaDeg:       toDeg(p.Alpha),
		BetaDeg:        toDeg(p.Beta),
		Scope:          p.Scope,
		AScope:         p.AScope,
		Speed:          p.Speed,
		NoiseDeg:       toDeg(p.Noise),
		ParticleRadius: p.ParticleRadius,
	}
}

// Params converts the header to run parameters for the given population.
func (h Header) Params(population int) state.Params {
	return state.Params{
		Population:     population,
		Width:          h.Width,
		Height:         h.Height,
		Alpha:          toRad(h.AlphaDeg),
		Beta:           toRad(h.BetaDeg),
		Scope:          h.Scope,
		AScope:         h.AScope,
		Speed:          h.Speed,
		Noise:          toRad(h.NoiseDeg),
		ParticleRadius: h.ParticleRadius,
		MaxTicks:       h.Ticks,
	}
}

// Capture snapshots the parameters and agent positions of s.
func Capture(s *state.State) *File {
	f := &File{Header: HeaderOf(s.Params), Agents: make([]Agent, s.Len())}
	for i := range f.Agents {
		f.Agents[i] = Agent{X: s.X[i], Y: s.Y[i], HeadingDeg: toDeg(s.F[i])}
	}
	return f
}

// Apply installs the file into s. A file without agents spawns fallback
// random agents instead. s is untouched if the parameters are invalid.
func (f *File) Apply(s *state.State, fallback int, rng *rand.Rand) error {
	n := len(f.Agents)
	if n == 0 {
		n = fallback
	}
	if err := s.Reset(f.Header.Params(n)); err != nil {
		return err
	}
	if len(f.Agents) == 0 {
		s.Spawn(rng)
		return nil
	}
	for i, a := range f.Agents {
		s.Place(i, state.Wrap(a.X, s.Width), state.Wrap(a.Y, s.Height), state.Wrap(toRad(a.HeadingDeg), state.Tau))
	}
	return nil
}
