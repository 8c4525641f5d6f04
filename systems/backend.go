package systems

import (
	"fmt"
	"runtime"

	"github.com/blobject/emergence-sub000/state"
)

// Backend computes neighbour tallies and applies motion for one tick.
// Implementations are interchangeable and must produce the same tallies and
// the same next state from the same inputs.
type Backend interface {
	Name() string
	// Seek overwrites N, L, R and AN from the positions and headings in a.
	Seek(idx *SpatialIndex, a *state.Agents, p SeekParams)
	// Move advances headings and positions in place from the current tallies.
	Move(a *state.Agents, p MoveParams, noise []float32)
	// Close releases any workers.
	Close()
}

// Backend kinds accepted by NewBackend.
const (
	BackendCPU      = "cpu"
	BackendParallel = "parallel"
)

// NewBackend selects a backend by name. workers <= 0 means GOMAXPROCS.
func NewBackend(kind string, workers int) (Backend, error) {
	switch kind {
	case BackendCPU, "":
		return NewCPUBackend(), nil
	case BackendParallel:
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		return NewParallelBackend(workers), nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

// CPUBackend runs seek and move on the calling goroutine. It is the reference
// for ordering.
type CPUBackend struct{}

// NewCPUBackend returns the sequential backend.
func NewCPUBackend() *CPUBackend { return &CPUBackend{} }

func (*CPUBackend) Name() string { return BackendCPU }

func (*CPUBackend) Seek(idx *SpatialIndex, a *state.Agents, p SeekParams) { Seek(idx, a, p) }

func (*CPUBackend) Move(a *state.Agents, p MoveParams, noise []float32) { Move(a, p, noise) }

func (*CPUBackend) Close() {}
