package systems

import (
	"math"

	"github.com/blobject/emergence-sub000/state"
)

// MoveParams are the constants of the motion rule. Angles are in radians.
type MoveParams struct {
	Width, Height float32
	Alpha, Beta   float32
	Speed         float32
}

// MoveParamsOf derives MoveParams from a state.
func MoveParamsOf(s *state.State) MoveParams {
	return MoveParams{
		Width:  s.Width,
		Height: s.Height,
		Alpha:  s.Alpha,
		Beta:   s.Beta,
		Speed:  s.Speed,
	}
}

// Move applies the motion rule to every agent sequentially. noise may be nil;
// otherwise noise[i] is added to agent i's turn.
func Move(a *state.Agents, p MoveParams, noise []float32) {
	for i := 0; i < a.Len(); i++ {
		moveAgent(a, p, noise, i)
	}
}

// moveAgent reads only agent i's own pre-tick heading and tallies, so agents
// may be moved in any order or concurrently.
func moveAgent(a *state.Agents, p MoveParams, noise []float32, i int) {
	turn := float32(p.Beta * float32(a.N[i]) * float32(signum(a.R[i], a.L[i])))
	f := float32(a.F[i] + p.Alpha)
	f = float32(f + turn)
	if noise != nil {
		f = float32(f + noise[i])
	}
	f = state.Wrap(f, state.Tau)
	c := float32(math.Cos(float64(f)))
	s := float32(math.Sin(float64(f)))
	a.F[i], a.C[i], a.S[i] = f, c, s
	a.X[i] = state.Wrap(float32(a.X[i]+float32(p.Speed*c)), p.Width)
	a.Y[i] = state.Wrap(float32(a.Y[i]+float32(p.Speed*s)), p.Height)
}

// signum returns the sign of r-l without unsigned underflow.
func signum(r, l uint32) int {
	switch {
	case r > l:
		return 1
	case r < l:
		return -1
	}
	return 0
}
