package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"docvault-backend/internal/shared/telemetry"
)

// Scheduler delivers a CompletionJob after delay.
type Scheduler interface {
	Schedule(ctx context.Context, job CompletionJob, delay time.Duration) error
}

// Completer applies a delivered job. *Service satisfies it.
type Completer interface {
	Complete(ctx context.Context, job CompletionJob) error
}

// ErrSchedulerStopped is returned once Stop has been called.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// TimerScheduler runs completions in-process on time.AfterFunc. Pending
// timers are lost on restart; the sweeper re-arms those logs.
type TimerScheduler struct {
	Target Completer

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
}

func NewTimerScheduler(target Completer) *TimerScheduler {
	return &TimerScheduler{Target: target, timers: make(map[*time.Timer]struct{})}
}

func (s *TimerScheduler) Schedule(ctx context.Context, job CompletionJob, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.Target == nil {
		return errors.New("timer scheduler has no target")
	}
	if delay < 0 {
		delay = 0
	}

	runCtx := detached(ctx)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		if err := s.Target.Complete(runCtx, job); err != nil {
			telemetry.Error("ingestion.completion_failed", map[string]any{
				"ingestion_id": job.LogID,
				"attempt":      job.Attempt,
				"request_id":   job.RequestID,
				"error":        err,
			})
		}
	})
	s.timers[t] = struct{}{}
	return nil
}

// Pending reports how many timers have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer and rejects further scheduling.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for t := range s.timers {
		t.Stop()
		delete(s.timers, t)
	}
}
