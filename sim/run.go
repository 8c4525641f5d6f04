package sim

import (
	"context"

	"golang.org/x/time/rate"
)

// Run steps the simulation until ctx is cancelled or the tick budget is spent.
// With ticksPerSecond > 0 ticks are paced by a rate limiter; otherwise they
// run back to back. Run returns nil when the budget is spent and ctx.Err()
// when cancelled.
func (s *Simulation) Run(ctx context.Context, ticksPerSecond float64) error {
	var limiter *rate.Limiter
	if ticksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ticksPerSecond), 1)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Done() {
			s.logger.Info("tick budget reached", "tick", s.Tick())
			return nil
		}

		if s.paused.Load() {
			if s.pending.Load() == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.wake:
				}
				continue
			}
			s.pending.Add(-1)
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		s.Step()
	}
}

// Pause stops a running Run loop after the current tick.
func (s *Simulation) Pause() {
	s.paused.Store(true)
}

// Resume continues a paused Run loop.
func (s *Simulation) Resume() {
	s.pending.Store(0)
	s.paused.Store(false)
	s.signal()
}

// StepOnce pauses a running Run loop and lets it advance by one tick.
func (s *Simulation) StepOnce() {
	s.paused.Store(true)
	s.pending.Add(1)
	s.signal()
}

// Paused reports whether the Run loop is paused.
func (s *Simulation) Paused() bool {
	return s.paused.Load()
}

func (s *Simulation) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
