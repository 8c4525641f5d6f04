package sim

import (
	"fmt"
	"path/filepath"

	"github.com/blobject/emergence-sub000/runfile"
	"github.com/blobject/emergence-sub000/telemetry"
)

// Load replaces the parameters and agents with the contents of a run file and
// restarts the tick count. Header fields the file lacks keep their current
// values; a file without agents spawns the configured fallback population.
// On any error the simulation is left untouched.
func (s *Simulation) Load(path string) error {
	s.mu.Lock()
	f, err := runfile.Load(path, runfile.HeaderOf(s.st.Params), s.rng)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := f.Apply(s.st, s.cfg.Population.Fallback, s.rng); err != nil {
		s.mu.Unlock()
		return err
	}
	s.tick = 0
	s.collector.Restart(0)
	s.resetClustersLocked()
	s.bookmarks.Reset()
	s.refreshLocked()
	s.collector.RecordReconfigure(true)
	s.metrics.ObserveReconfigure(true)
	agents := s.st.Len()
	s.mu.Unlock()

	s.logger.Info("run file loaded", "path", path, "agents", agents)
	s.emit([]Event{{Kind: EventReconfigured, Respawned: true}})
	return nil
}

// Save writes the parameters and agents to a run file.
func (s *Simulation) Save(path string) error {
	s.mu.Lock()
	f := runfile.Capture(s.st)
	s.mu.Unlock()

	if err := runfile.Save(path, f); err != nil {
		return err
	}
	s.logger.Info("run file saved", "path", path, "agents", len(f.Agents))
	return nil
}

// saveSnapshot writes the current state to the snapshot directory. The caller
// holds the lock.
func (s *Simulation) saveSnapshot(bm telemetry.Bookmark) {
	path := filepath.Join(s.snapshotDir, fmt.Sprintf("tick%08d_%s.run", bm.Tick, bm.Type))
	if err := runfile.Save(path, runfile.Capture(s.st)); err != nil {
		s.logger.Error("failed to save snapshot", "error", err)
		return
	}
	s.logger.Info("snapshot saved", "path", path, "tick", bm.Tick)
}
