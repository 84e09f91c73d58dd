package queue

import (
	"context"
	"time"

	"docvault-backend/internal/ingestion"
)

// AsynqScheduler schedules ingestion completions as durable tasks.
type AsynqScheduler struct {
	Client Client
}

func (s *AsynqScheduler) Schedule(ctx context.Context, job ingestion.CompletionJob, delay time.Duration) error {
	return s.Client.Send(ctx, Message{
		LogID:     job.LogID,
		Attempt:   job.Attempt,
		RequestID: job.RequestID,
	}, delay)
}

// JobFromMessage converts a decoded payload back into a completion job.
func JobFromMessage(msg Message) ingestion.CompletionJob {
	return ingestion.CompletionJob{LogID: msg.LogID, Attempt: msg.Attempt, RequestID: msg.RequestID}
}

var _ ingestion.Scheduler = (*AsynqScheduler)(nil)
