// Package analysis derives per-agent types and colours from the neighbour
// tallies, and summarises clustering results.
package analysis

import "github.com/blobject/emergence-sub000/state"

// Density thresholds separating the agent types.
const (
	SporeMin        = 13 // premature spores start here
	SporeMax        = 15 // above this an agent is a hull, core or mature spore
	CellCoreMin     = 36
	MatureSporeNear = 15 // close neighbours needed on top of SporeMax
)

// KindOf types one agent from its tally n and its close-range tally an.
func KindOf(n, an uint32) state.Kind {
	switch {
	case n > SporeMax && an > MatureSporeNear:
		return state.KindMatureSpore
	case n >= CellCoreMin:
		return state.KindCellCore
	case n > SporeMax:
		return state.KindCellHull
	case n >= SporeMin:
		return state.KindPrematureSpore
	}
	return state.KindNutrient
}

// Classify writes Kind for every agent from its current tallies.
func Classify(a *state.Agents) {
	for i := range a.Kind {
		a.Kind[i] = KindOf(a.N[i], a.AN[i])
	}
}

// KindCounts tallies agents per kind.
type KindCounts [state.KindCellCore + 1]int

// CountKinds returns the number of agents of each kind.
func CountKinds(kinds []state.Kind) KindCounts {
	var c KindCounts
	for _, k := range kinds {
		if int(k) < len(c) {
			c[k]++
		}
	}
	return c
}
