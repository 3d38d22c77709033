// internal/guessgame/timer.go
package guessgame

import "context"

// timerScope owns at most one pending timer goroutine for a single purpose (round end or countdown).
// All methods assume the owning game's lock is held.
//
// Each reset bumps the generation, so a goroutine that wakes up after being superseded can tell
// it is stale even if it raced the cancellation.
type timerScope struct {
	gen    uint64
	cancel context.CancelFunc
}

// reset cancels whatever the scope was running and hands out a context and generation for the replacement.
func (s *timerScope) reset() (context.Context, uint64) {
	s.stop()
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return ctx, s.gen
}

// stop cancels the pending timer, if any.
func (s *timerScope) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// live reports whether gen is still the scope's active timer.
func (s *timerScope) live(gen uint64) bool {
	return s.cancel != nil && s.gen == gen
}
