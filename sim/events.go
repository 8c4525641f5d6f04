package sim

import (
	"maps"
	"slices"

	"github.com/blobject/emergence-sub000/analysis"
	"github.com/blobject/emergence-sub000/telemetry"
)

// EventKind identifies simulation events.
type EventKind uint8

const (
	// EventTick follows every completed tick.
	EventTick EventKind = iota
	// EventReconfigured follows a parameter change or a loaded run file.
	EventReconfigured
	// EventClustered follows a clustering pass.
	EventClustered
	// EventWindow follows a flushed stats window.
	EventWindow
)

var eventNames = [...]string{"tick", "reconfigured", "clustered", "window"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is delivered to subscribers after the simulation lock is released.
type Event struct {
	Kind EventKind
	Tick int64

	// EventReconfigured
	Respawned bool

	// EventClustered
	Census *analysis.Census

	// EventWindow
	Stats     *telemetry.WindowStats
	Bookmarks []telemetry.Bookmark
}

// Subscribe registers fn to receive every event and returns a function that
// removes it. fn runs on the goroutine that caused the event and may call back
// into the simulation.
func (s *Simulation) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Simulation) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		subs = append(subs, s.subs[id])
	}
	s.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
