package analysis

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/blobject/emergence-sub000/state"
)

// ErrUnknownScheme is returned by ParseScheme for unrecognised names.
var ErrUnknownScheme = errors.New("unknown colouring scheme")

// Mode selects how agents are coloured.
type Mode uint8

const (
	ModeNormal  Mode = iota // by kind
	ModeDynamic             // by neighbour count relative to scope
	ModeCluster             // by cluster membership
	ModeDensity             // white at or above a neighbour threshold
)

// Scheme is a colouring mode plus its parameter.
type Scheme struct {
	Mode      Mode
	Threshold uint32 // ModeDensity only
}

// ParseScheme accepts "normal", "dynamic", "cluster" and "density<k>" such as
// "density20".
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "normal", "":
		return Scheme{Mode: ModeNormal}, nil
	case "dynamic":
		return Scheme{Mode: ModeDynamic}, nil
	case "cluster":
		return Scheme{Mode: ModeCluster}, nil
	}
	if k, ok := strings.CutPrefix(s, "density"); ok {
		v, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return Scheme{}, fmt.Errorf("%w: %q", ErrUnknownScheme, s)
		}
		return Scheme{Mode: ModeDensity, Threshold: uint32(v)}, nil
	}
	return Scheme{}, fmt.Errorf("%w: %q", ErrUnknownScheme, s)
}

func (s Scheme) String() string {
	switch s.Mode {
	case ModeDynamic:
		return "dynamic"
	case ModeCluster:
		return "cluster"
	case ModeDensity:
		return "density" + strconv.FormatUint(uint64(s.Threshold), 10)
	}
	return "normal"
}

// RGB is a colour with channels in [0, 1].
type RGB struct{ R, G, B float32 }

var kindColors = [...]RGB{
	state.KindNutrient:       {0.2, 0.6, 0},
	state.KindPrematureSpore: {0.4, 0.2, 0.1},
	state.KindMatureSpore:    {0.8, 0.2, 0.4},
	state.KindCellHull:       {0.2, 0.4, 0.8},
	state.KindCellCore:       {0.8, 0.8, 0},
}

// KindColor returns the normal-scheme colour of a kind.
func KindColor(k state.Kind) RGB {
	if int(k) < len(kindColors) {
		return kindColors[k]
	}
	return kindColors[state.KindNutrient]
}

var (
	grey  = RGB{0.2, 0.2, 0.2}
	white = RGB{1, 1, 1}
)

// Palette hands out one random colour per cluster. Colours are stable across
// calls until Reset, so a cluster keeps its colour between frames.
type Palette struct {
	rng    *rand.Rand
	colors []RGB
}

// NewPalette creates a palette drawing from rng.
func NewPalette(rng *rand.Rand) *Palette {
	return &Palette{rng: rng}
}

// Color returns the colour of cluster i, drawing new colours as needed.
func (p *Palette) Color(i int) RGB {
	for len(p.colors) <= i {
		p.colors = append(p.colors, RGB{
			R: 0.3 + 0.7*p.rng.Float32(),
			G: 0.3 + 0.7*p.rng.Float32(),
			B: 0.3 + 0.7*p.rng.Float32(),
		})
	}
	return p.colors[i]
}

// Reset forgets all drawn colours.
func (p *Palette) Reset() { p.colors = p.colors[:0] }

// Colorize fills the colour channels of a. scope scales ModeDynamic.
// membership maps agents to cluster indices (-1 for none) and is only read in
// ModeCluster; a nil membership colours everything grey.
func Colorize(a *state.Agents, s Scheme, scope float32, membership []int, pal *Palette) {
	n := a.Len()
	switch s.Mode {
	case ModeNormal:
		for i := 0; i < n; i++ {
			set(a, i, KindColor(a.Kind[i]))
		}
	case ModeDynamic:
		for i := 0; i < n; i++ {
			c := float32(a.N[i])
			set(a, i, RGB{R: c / (scope / 1.5), G: c / scope, B: 0.7})
		}
	case ModeCluster:
		for i := 0; i < n; i++ {
			if i < len(membership) && membership[i] >= 0 && pal != nil {
				set(a, i, pal.Color(membership[i]))
			} else {
				set(a, i, grey)
			}
		}
	case ModeDensity:
		for i := 0; i < n; i++ {
			if a.N[i] >= s.Threshold {
				set(a, i, white)
			} else {
				set(a, i, grey)
			}
		}
	}
}

func set(a *state.Agents, i int, c RGB) {
	a.Red[i], a.Green[i], a.Blue[i] = c.R, c.G, c.B
}
