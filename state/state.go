// Package state holds the arena parameters and the per-agent arrays of the
// particle system.
//
// Agents are not individually allocated. Every per-agent quantity lives in its
// own slice and all slices share one index, so agent i is X[i], Y[i], F[i] and
// so on. Backends and the cluster engine operate on these slices directly.
package state

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Tau is a full turn in radians.
const Tau = float32(2 * math.Pi)

// ErrInvalidParams is returned when parameters describe an impossible arena.
var ErrInvalidParams = errors.New("invalid parameters")

// Params are the transportable run parameters. Angles are in radians.
type Params struct {
	Population     int
	Width          float32
	Height         float32
	Alpha          float32
	Beta           float32
	Scope          float32
	AScope         float32
	Speed          float32
	Noise          float32
	ParticleRadius float32
	MaxTicks       int64 // -1 = unlimited
}

// Validate checks the arena invariants W, H, scope > 0.
func (p Params) Validate() error {
	switch {
	case p.Population < 0:
		return fmt.Errorf("%w: population %d", ErrInvalidParams, p.Population)
	case !(p.Width > 0) || !(p.Height > 0):
		return fmt.Errorf("%w: arena %gx%g", ErrInvalidParams, p.Width, p.Height)
	case !(p.Scope > 0):
		return fmt.Errorf("%w: scope %g", ErrInvalidParams, p.Scope)
	case p.AScope < 0:
		return fmt.Errorf("%w: ascope %g", ErrInvalidParams, p.AScope)
	}
	return nil
}

// NeedsRespawn reports whether moving from p to next invalidates the current
// agent positions.
func (p Params) NeedsRespawn(next Params) bool {
	return next.Population != p.Population || next.Width != p.Width || next.Height != p.Height
}

// Kind classifies an agent by its local density.
type Kind uint8

const (
	KindNutrient Kind = iota
	KindPrematureSpore
	KindMatureSpore
	KindCellHull
	KindCellCore
)

var kindNames = [...]string{"nutrient", "premature_spore", "mature_spore", "cell_hull", "cell_core"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Agents is the structure-of-arrays agent storage.
type Agents struct {
	// Position, heading and the cached heading vector.
	X, Y []float32
	F    []float32
	C, S []float32

	// Tallies written by neighbour seeking. N = L + R.
	N, L, R []uint32
	// AN counts neighbours inside the secondary scope.
	AN []uint32

	// Density class and colour channels for the rendering side.
	Kind    []Kind
	Red     []float32
	Green   []float32
	Blue    []float32
	Opacity []float32
}

// Len returns the number of agents.
func (a *Agents) Len() int { return len(a.X) }

// Resize sets the number of agents, reusing capacity.
func (a *Agents) Resize(n int) {
	a.X = resize(a.X, n)
	a.Y = resize(a.Y, n)
	a.F = resize(a.F, n)
	a.C = resize(a.C, n)
	a.S = resize(a.S, n)
	a.N = resize(a.N, n)
	a.L = resize(a.L, n)
	a.R = resize(a.R, n)
	a.AN = resize(a.AN, n)
	a.Kind = resize(a.Kind, n)
	a.Red = resize(a.Red, n)
	a.Green = resize(a.Green, n)
	a.Blue = resize(a.Blue, n)
	a.Opacity = resize(a.Opacity, n)
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// Place sets the position and heading of agent i and refreshes its heading vector.
func (a *Agents) Place(i int, x, y, heading float32) {
	a.X[i] = x
	a.Y[i] = y
	a.SetHeading(i, heading)
	a.Red[i], a.Green[i], a.Blue[i], a.Opacity[i] = 1, 1, 1, 0.5
}

// SetHeading sets F[i] and keeps C[i], S[i] consistent with it.
func (a *Agents) SetHeading(i int, heading float32) {
	a.F[i] = heading
	a.C[i] = float32(math.Cos(float64(heading)))
	a.S[i] = float32(math.Sin(float64(heading)))
}

// ClearTallies zeroes N, L, R and AN.
func (a *Agents) ClearTallies() {
	clear(a.N)
	clear(a.L)
	clear(a.R)
	clear(a.AN)
}

// Clone returns a deep copy.
func (a *Agents) Clone() *Agents {
	return &Agents{
		X: clone(a.X), Y: clone(a.Y), F: clone(a.F), C: clone(a.C), S: clone(a.S),
		N: clone(a.N), L: clone(a.L), R: clone(a.R), AN: clone(a.AN),
		Kind: clone(a.Kind),
		Red:  clone(a.Red), Green: clone(a.Green), Blue: clone(a.Blue), Opacity: clone(a.Opacity),
	}
}

func clone[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// State is the main data source of the particle system.
type State struct {
	Params
	Agents

	// Derived from Params.
	ScopeSquared  float32
	AScopeSquared float32
}

// New creates a state with a uniformly random population.
func New(p Params, rng *rand.Rand) *State {
	s := &State{Params: p}
	s.derive()
	s.Spawn(rng)
	return s
}

func (s *State) derive() {
	s.ScopeSquared = s.Scope * s.Scope
	s.AScopeSquared = s.AScope * s.AScope
}

// Spawn replaces all agents with Population uniformly random ones.
func (s *State) Spawn(rng *rand.Rand) {
	s.Agents.Resize(s.Population)
	for i := 0; i < s.Population; i++ {
		x := rng.Float32() * s.Width
		y := rng.Float32() * s.Height
		f := rng.Float32() * Tau
		s.Place(i, clampBelow(x, s.Width), clampBelow(y, s.Height), clampBelow(f, Tau))
	}
}

// Reset validates and installs p, and resizes the agents to p.Population with
// every field zeroed. The caller places the agents.
func (s *State) Reset(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.Params = p
	s.derive()
	s.Agents.Resize(p.Population)
	return nil
}

// Change replaces the parameters. The population is respawned when force is set
// or when the population size or arena dimensions differ. It returns whether
// anything changed and whether agents were respawned.
func (s *State) Change(next Params, force bool, rng *rand.Rand) (changed, respawned bool, err error) {
	if err := next.Validate(); err != nil {
		return false, false, err
	}
	respawn := force || s.Params.NeedsRespawn(next)
	if !respawn && next == s.Params {
		return false, false, nil
	}
	s.Params = next
	s.derive()
	if respawn {
		s.Spawn(rng)
	}
	return true, respawn, nil
}

// Wrap returns v reduced into [0, span).
func Wrap(v, span float32) float32 {
	m := float32(math.Mod(float64(v), float64(span)))
	if m < 0 {
		m += span
	}
	// m + span can round up to span for tiny negative m
	if m >= span {
		m = 0
	}
	return m
}

// rng.Float32()*span can round up to span.
func clampBelow(v, span float32) float32 {
	if v >= span {
		return 0
	}
	return v
}
