package scheduler

import (
	"context"
	"runtime"
	"time"
)

const (
	minIdleBackoff = time.Millisecond
	maxIdleBackoff = 50 * time.Millisecond
)

// Checkpoint marks a point in the high-priority submission history.
type Checkpoint struct {
	epoch uint64
}

// Wake delivers a signal whenever a flush becomes scheduled. Signals coalesce:
// several low-priority submissions before the host reacts produce one signal.
func (s *Scheduler) Wake() <-chan struct{} {
	return s.wake
}

// Checkpoint captures the current high-priority epoch. Pass it to FlushIdle at
// the host's next idle point.
func (s *Scheduler) Checkpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Checkpoint{epoch: s.epoch}
}

// FlushIdle flushes the pending batch only if no high-priority work is in
// flight and none was submitted since cp. It reports whether a batch ran.
// A steady stream of high-priority submissions can postpone the flush
// indefinitely.
func (s *Scheduler) FlushIdle(cp Checkpoint) (bool, error) {
	return s.FlushIdleContext(context.Background(), cp)
}

// FlushIdleContext is FlushIdle with a parent context for the flush span.
func (s *Scheduler) FlushIdleContext(ctx context.Context, cp Checkpoint) (bool, error) {
	return s.flush(ctx, func() bool {
		return s.inFlight == 0 && s.epoch == cp.epoch && len(s.order) > 0
	})
}

// HasPending reports whether any low-priority request is waiting.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order) > 0
}

// Run is an idle loop for hosts without their own event loop. It waits for a
// scheduled flush, yields, and flushes once high-priority work has drained.
// Batch failures are logged, not returned. Run returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
		for attempt := 0; s.HasPending(); attempt++ {
			cp := s.Checkpoint()
			if err := s.yield(ctx, attempt); err != nil {
				return err
			}
			flushed, err := s.FlushIdleContext(ctx, cp)
			if err != nil {
				s.logger.Printf("scheduler: idle flush: %v", err)
			}
			if flushed {
				break
			}
		}
	}
}

// yield waits out one idle point. Without an idle delay the first attempt
// only yields the processor; later attempts, which mean high-priority work
// kept the batch back, back off up to maxIdleBackoff.
func (s *Scheduler) yield(ctx context.Context, attempt int) error {
	d := s.idleDelay
	if d <= 0 {
		d = idleBackoff(attempt)
	}
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func idleBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return min(minIdleBackoff<<min(attempt-1, 8), maxIdleBackoff)
}
