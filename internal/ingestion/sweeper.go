package ingestion

import (
	"context"
	"time"

	"github.com/robfig/cron"

	"docvault-backend/internal/shared/metrics"
	"docvault-backend/internal/shared/telemetry"
)

const sweepBatch = 100

// Sweeper re-schedules open logs whose completion never landed, e.g.
// because the process holding the timer restarted.
type Sweeper struct {
	Repo       Repo
	Scheduler  Scheduler
	Delay      time.Duration
	StaleAfter time.Duration
	Now        func() time.Time

	cron *cron.Cron
}

// Start runs one sweep immediately and then on the cron spec.
func (s *Sweeper) Start(spec string) error {
	if spec == "" {
		spec = "@every 1m"
	}
	c := cron.New()
	if err := c.AddFunc(spec, func() { s.runLogged() }); err != nil {
		return err
	}
	s.cron = c
	go s.runLogged()
	c.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Sweeper) runLogged() {
	n, err := s.Sweep(context.Background())
	if err != nil {
		telemetry.Error("ingestion.sweep_failed", map[string]any{"error": err})
		return
	}
	if n > 0 {
		telemetry.Info("ingestion.sweep", map[string]any{"rearmed": n})
	}
}

// Sweep re-arms stale open logs with their current attempt and returns how
// many were scheduled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	cutoff := now.Add(-(s.Delay + s.StaleAfter))
	stale, err := s.Repo.ListStaleOpen(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	rearmed := 0
	for _, log := range stale {
		job := CompletionJob{LogID: log.ID, Attempt: log.Attempt}
		if err := s.Scheduler.Schedule(ctx, job, 0); err != nil {
			telemetry.Warn("ingestion.rearm_failed", map[string]any{
				"ingestion_id": log.ID,
				"attempt":      log.Attempt,
				"error":        err,
			})
			continue
		}
		metrics.IncIngestionRearmed()
		rearmed++
	}
	return rearmed, nil
}
