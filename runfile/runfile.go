// Package runfile reads and writes the plain-text run format.
//
// The first line is a header of whitespace-separated fields in a fixed order:
//
//	ticks width height alpha beta scope ascope speed noise particle_radius
//
// Angles are in degrees. Every following non-empty line is one agent:
//
//	index x y heading
//
// The index is written for readability and ignored on read.
package runfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/blobject/emergence-sub000/state"
)

// ErrUnreadable is returned when a run file cannot be opened or read.
var ErrUnreadable = errors.New("unreadable run file")

// Header holds the run parameters. Angles are in degrees.
type Header struct {
	Ticks          int64
	Width          float32
	Height         float32
	AlphaDeg       float64
	BetaDeg        float64
	Scope          float32
	AScope         float32
	Speed          float32
	NoiseDeg       float64
	ParticleRadius float32
}

// Agent is one agent line. Heading is in degrees.
type Agent struct {
	X, Y       float32
	HeadingDeg float64
}

// File is a parsed run file.
type File struct {
	Header Header
	Agents []Agent
}

// Read parses a run file. Header fields are read in order until the first one
// that fails to parse; that field and all later ones keep their value from
// base. Agent fields are read the same way, and fields after the first failure
// are drawn uniformly from the arena and [0, 360). Positions outside the arena
// are wrapped into it.
//
// A file with no agent lines yields a File with no agents; callers decide the
// fallback population.
func Read(r io.Reader, base Header, rng *rand.Rand) (*File, error) {
	f := &File{Header: base}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if sc.Scan() {
		parseHeader(sc.Text(), &f.Header)
	}
	h := &f.Header
	if !(h.Width > 0) || !(h.Height > 0) {
		return nil, fmt.Errorf("%w: arena %gx%g", state.ErrInvalidParams, h.Width, h.Height)
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		f.Agents = append(f.Agents, parseAgent(line, h.Width, h.Height, rng))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return f, nil
}

func parseHeader(line string, h *Header) {
	fields := strings.Fields(line)
	next := func() (string, bool) {
		if len(fields) == 0 {
			return "", false
		}
		s := fields[0]
		fields = fields[1:]
		return s, true
	}
	readF32 := func(dst *float32) bool {
		s, ok := next()
		if !ok {
			return false
		}
		v, err := parseFloat(s, 32)
		if err != nil {
			fields = nil
			return false
		}
		*dst = float32(v)
		return true
	}
	readF64 := func(dst *float64) bool {
		s, ok := next()
		if !ok {
			return false
		}
		v, err := parseFloat(s, 64)
		if err != nil {
			fields = nil
			return false
		}
		*dst = v
		return true
	}

	s, ok := next()
	if !ok {
		return
	}
	ticks, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return
	}
	h.Ticks = ticks

	_ = readF32(&h.Width) && readF32(&h.Height) &&
		readF64(&h.AlphaDeg) && readF64(&h.BetaDeg) &&
		readF32(&h.Scope) && readF32(&h.AScope) && readF32(&h.Speed) &&
		readF64(&h.NoiseDeg) && readF32(&h.ParticleRadius)
}

func parseAgent(line string, w, h float32, rng *rand.Rand) Agent {
	fields := strings.Fields(line)
	var vals [3]float64
	bits := [3]int{32, 32, 64}
	parsed := 0
	// fields[0] is the index
	for k := 0; k < 3 && k+1 < len(fields); k++ {
		v, err := parseFloat(fields[k+1], bits[k])
		if err != nil {
			break
		}
		vals[k] = v
		parsed++
	}

	a := Agent{}
	if parsed > 0 {
		a.X = state.Wrap(float32(vals[0]), w)
	} else {
		a.X = randBelow(rng, w)
	}
	if parsed > 1 {
		a.Y = state.Wrap(float32(vals[1]), h)
	} else {
		a.Y = randBelow(rng, h)
	}
	if parsed > 2 {
		a.HeadingDeg = vals[2]
	} else {
		a.HeadingDeg = rng.Float64() * 360
	}
	return a
}

// parseFloat rejects NaN and infinities, which no field may hold.
func parseFloat(s string, bits int) (float64, error) {
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func randBelow(rng *rand.Rand, span float32) float32 {
	v := rng.Float32() * span
	if v >= span {
		return 0
	}
	return v
}

// Write emits f in the run format. Values are written with the shortest
// representation that reads back to the same number.
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)
	h := &f.Header
	fmt.Fprintf(bw, "%d %s %s %s %s %s %s %s %s %s\n",
		h.Ticks,
		f32(h.Width), f32(h.Height),
		f64(h.AlphaDeg), f64(h.BetaDeg),
		f32(h.Scope), f32(h.AScope), f32(h.Speed),
		f64(h.NoiseDeg), f32(h.ParticleRadius))
	for i, a := range f.Agents {
		fmt.Fprintf(bw, "%d %s %s %s\n", i, f32(a.X), f32(a.Y), f64(a.HeadingDeg))
	}
	return bw.Flush()
}

func f32(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

func f64(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Load reads the run file at path.
func Load(path string, base Header, rng *rand.Rand) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer fh.Close()
	return Read(fh, base, rng)
}

// Save writes f to path, replacing any existing file.
func Save(path string, f *File) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating run file: %w", err)
	}
	if err := Write(fh, f); err != nil {
		fh.Close()
		return fmt.Errorf("writing run file: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("closing run file: %w", err)
	}
	return nil
}
