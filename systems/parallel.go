package systems

import (
	"sync"

	"github.com/blobject/emergence-sub000/state"
)

// parallelThreshold is the minimum agent count to dispatch to workers.
// Below this, goroutine handoff costs more than the work.
const parallelThreshold = 64

type phase uint8

const (
	phaseSeek phase = iota
	phaseMove
)

// workChunk is a range of agents for one worker.
type workChunk struct {
	start, end int
	phase      phase
}

// ParallelBackend splits each tick into one unit of work per agent and runs
// the units on a persistent worker pool.
//
// Seek units rescan their agent's whole vicinity instead of skipping pairs by
// index, so every tally is written by exactly one unit and no shared counter
// is ever incremented concurrently. Move units only touch their own agent.
type ParallelBackend struct {
	numWorkers int

	// Job inputs, set before dispatch and read-only while workers run.
	idx   *SpatialIndex
	a     *state.Agents
	seekP SeekParams
	moveP MoveParams
	noise []float32

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
	mu       sync.Mutex // serialises ticks and Close
}

// NewParallelBackend creates a backend with the given worker count. Workers
// start lazily on the first large tick.
func NewParallelBackend(workers int) *ParallelBackend {
	if workers < 1 {
		workers = 1
	}
	return &ParallelBackend{numWorkers: workers}
}

func (b *ParallelBackend) Name() string { return BackendParallel }

// Workers returns the pool size.
func (b *ParallelBackend) Workers() int { return b.numWorkers }

// Seek tallies every agent, one independent unit per agent.
func (b *ParallelBackend) Seek(idx *SpatialIndex, a *state.Agents, p SeekParams) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.idx, b.a, b.seekP = idx, a, p
	b.dispatch(phaseSeek, a.Len())
	b.idx, b.a = nil, nil
}

// Move advances every agent, one independent unit per agent.
func (b *ParallelBackend) Move(a *state.Agents, p MoveParams, noise []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.a, b.moveP, b.noise = a, p, noise
	b.dispatch(phaseMove, a.Len())
	b.a, b.noise = nil, nil
}

// dispatch runs units [0, n) and returns once all of them are done.
func (b *ParallelBackend) dispatch(ph phase, n int) {
	if n == 0 {
		return
	}
	if n < parallelThreshold || b.numWorkers == 1 {
		b.compute(workChunk{start: 0, end: n, phase: ph})
		return
	}
	if !b.running {
		b.startWorkers()
	}

	chunkSize := (n + b.numWorkers - 1) / b.numWorkers
	dispatched := 0
	for w := 0; w < b.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		b.workChan <- workChunk{start: start, end: end, phase: ph}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-b.doneChan
	}
}

func (b *ParallelBackend) compute(c workChunk) {
	switch c.phase {
	case phaseSeek:
		for i := c.start; i < c.end; i++ {
			seekAgent(b.idx, b.a, b.seekP, i)
		}
	case phaseMove:
		for i := c.start; i < c.end; i++ {
			moveAgent(b.a, b.moveP, b.noise, i)
		}
	}
}

func (b *ParallelBackend) startWorkers() {
	b.workChan = make(chan workChunk, b.numWorkers)
	b.doneChan = make(chan struct{}, b.numWorkers)
	b.stopChan = make(chan struct{})
	b.running = true
	for i := 0; i < b.numWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
}

func (b *ParallelBackend) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopChan:
			return
		case chunk := <-b.workChan:
			b.compute(chunk)
			b.doneChan <- struct{}{}
		}
	}
}

// Close stops the worker pool. The backend can be reused afterwards; workers
// restart on demand.
func (b *ParallelBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	close(b.stopChan)
	b.wg.Wait()
	b.running = false
}
