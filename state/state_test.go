package state

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func testParams() Params {
	return Params{
		Population: 200,
		Width:      300,
		Height:     200,
		Alpha:      math.Pi,
		Beta:       17 * Tau / 360,
		Scope:      24,
		AScope:     12,
		Speed:      4,
		MaxTicks:   -1,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(*Params) {}, false},
		{"zero population", func(p *Params) { p.Population = 0 }, false},
		{"negative population", func(p *Params) { p.Population = -1 }, true},
		{"zero width", func(p *Params) { p.Width = 0 }, true},
		{"negative height", func(p *Params) { p.Height = -5 }, true},
		{"nan width", func(p *Params) { p.Width = float32(math.NaN()) }, true},
		{"zero scope", func(p *Params) { p.Scope = 0 }, true},
		{"negative ascope", func(p *Params) { p.AScope = -1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Errorf("expected ErrInvalidParams, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewSpawnsInArena(t *testing.T) {
	p := testParams()
	s := New(p, rand.New(rand.NewSource(1)))

	if s.Len() != p.Population {
		t.Fatalf("expected %d agents, got %d", p.Population, s.Len())
	}
	if s.ScopeSquared != 576 || s.AScopeSquared != 144 {
		t.Errorf("derived squares = %v, %v", s.ScopeSquared, s.AScopeSquared)
	}
	for i := 0; i < s.Len(); i++ {
		if s.X[i] < 0 || s.X[i] >= p.Width || s.Y[i] < 0 || s.Y[i] >= p.Height {
			t.Errorf("agent %d at (%v, %v) outside arena", i, s.X[i], s.Y[i])
		}
		if s.F[i] < 0 || s.F[i] >= Tau {
			t.Errorf("agent %d heading %v outside [0, tau)", i, s.F[i])
		}
		if s.N[i] != 0 || s.L[i] != 0 || s.R[i] != 0 || s.AN[i] != 0 {
			t.Errorf("agent %d has nonzero tallies", i)
		}
	}
}

func TestSpawnDeterministic(t *testing.T) {
	a := New(testParams(), rand.New(rand.NewSource(99)))
	b := New(testParams(), rand.New(rand.NewSource(99)))
	for i := range a.X {
		if a.X[i] != b.X[i] || a.Y[i] != b.Y[i] || a.F[i] != b.F[i] {
			t.Fatalf("agent %d differs for the same seed", i)
		}
	}
}

func TestChange(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Params)
		force         bool
		wantChanged   bool
		wantRespawned bool
	}{
		{"identical", func(*Params) {}, false, false, false},
		{"identical forced", func(*Params) {}, true, true, true},
		{"speed only", func(p *Params) { p.Speed = 2 }, false, true, false},
		{"population", func(p *Params) { p.Population = 50 }, false, true, true},
		{"width", func(p *Params) { p.Width = 400 }, false, true, true},
		{"height", func(p *Params) { p.Height = 100 }, false, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(3))
			s := New(testParams(), rng)
			x0 := s.X[0]
			next := s.Params
			tc.mutate(&next)

			changed, respawned, err := s.Change(next, tc.force, rng)
			if err != nil {
				t.Fatal(err)
			}
			if changed != tc.wantChanged || respawned != tc.wantRespawned {
				t.Errorf("Change = (%v, %v), want (%v, %v)", changed, respawned, tc.wantChanged, tc.wantRespawned)
			}
			if s.Len() != next.Population {
				t.Errorf("population %d, want %d", s.Len(), next.Population)
			}
			if !tc.wantRespawned && s.X[0] != x0 {
				t.Error("agents moved without a respawn")
			}
		})
	}
}

func TestChangeRejectsInvalid(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := New(testParams(), rng)
	before := s.Params
	next := before
	next.Scope = 0
	if _, _, err := s.Change(next, false, rng); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if s.Params != before {
		t.Error("params changed despite validation failure")
	}
}

func TestChangeRederivesSquares(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := New(testParams(), rng)
	next := s.Params
	next.Scope = 10
	next.AScope = 3
	if _, _, err := s.Change(next, false, rng); err != nil {
		t.Fatal(err)
	}
	if s.ScopeSquared != 100 || s.AScopeSquared != 9 {
		t.Errorf("squares = %v, %v, want 100, 9", s.ScopeSquared, s.AScopeSquared)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := New(testParams(), rand.New(rand.NewSource(4)))
	c := s.Agents.Clone()
	c.X[0] = -1
	c.N[0] = 7
	if s.X[0] == -1 || s.N[0] == 7 {
		t.Error("clone shares storage with the original")
	}
	if c.Len() != s.Len() {
		t.Errorf("clone length %d, want %d", c.Len(), s.Len())
	}
}

func TestPlaceKeepsHeadingVector(t *testing.T) {
	var a Agents
	a.Resize(1)
	a.Place(0, 1, 2, Tau/4)
	if math.Abs(float64(a.C[0])) > 1e-6 || math.Abs(float64(a.S[0]-1)) > 1e-6 {
		t.Errorf("heading vector = (%v, %v), want (0, 1)", a.C[0], a.S[0])
	}
	if a.Opacity[0] != 0.5 {
		t.Errorf("opacity = %v, want 0.5", a.Opacity[0])
	}
}

func TestKindString(t *testing.T) {
	if KindCellCore.String() != "cell_core" {
		t.Errorf("got %q", KindCellCore.String())
	}
	if Kind(42).String() != "kind(42)" {
		t.Errorf("got %q", Kind(42).String())
	}
}
