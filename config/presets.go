package config

import (
	"fmt"
	"math/rand"
)

// Pattern is a named alpha/beta combination known to produce a recognisable
// structure. Angles are in degrees.
type Pattern struct {
	Name     string
	AlphaDeg float64
	BetaDeg  float64
}

// Patterns lists the known presets in display order.
var Patterns = []Pattern{
	{"Lifelike structures 1", 180, 17},
	{"Moving structures", 180, -7},
	{"Clean cow pattern", 180, -15},
	{"Chaos w/ random aggr. 1", 90, -21},
	{"Fingerprint pattern", 0, -10},
	{"Chaos w/ random aggr. 2", 0, -41},
	{"Untidy cow pattern", 0, -25},
	{"Chaos w/ random aggr. 3", -180, -48},
	{"Regular pattern", -180, 5},
	{"Lifelike structures 2", -159, 15},
	{"Stable cluster pattern", 0, 1},
	{"Chaotic pattern 1", -180, 58},
	{"Chaotic pattern 2", 0, 40},
	{"Cells & moving cluster", 0, 8},
	{"Chaotic pattern 3", 0, 0},
	{"Stable rings", 45, 4},
}

// ApplyPattern sets the motion angles of c to preset i.
func (c *Config) ApplyPattern(i int) error {
	if i < 0 || i >= len(Patterns) {
		return fmt.Errorf("%w: pattern %d out of range [0, %d)", ErrInvalid, i, len(Patterns))
	}
	c.Motion.AlphaDeg = Patterns[i].AlphaDeg
	c.Motion.BetaDeg = Patterns[i].BetaDeg
	c.computeDerived()
	return nil
}

// Randomize draws alpha, beta, scope and speed scaled to the arena.
func (c *Config) Randomize(rng *rand.Rand) {
	scale := min(c.World.Width, c.World.Height) / 100
	c.Motion.AlphaDeg = -180 + 360*rng.Float64()
	c.Motion.BetaDeg = -180 + 360*rng.Float64()
	c.Motion.Scope = 1 + (10*scale-1)*rng.Float64()
	c.Motion.Speed = 1 + (scale-1)*rng.Float64()
	c.computeDerived()
}
