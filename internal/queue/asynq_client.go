package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"docvault-backend/internal/shared/telemetry"
)

const defaultMaxRetry = 3

// RedisOptions locates the Redis instance backing asynq.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func (o RedisOptions) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

// AsynqClient implements Client using asynq.
type AsynqClient struct {
	client   *asynq.Client
	maxRetry int
}

// NewAsynqClient constructs an AsynqClient.
func NewAsynqClient(opts RedisOptions) (*AsynqClient, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return &AsynqClient{
		client:   asynq.NewClient(opts.clientOpt()),
		maxRetry: defaultMaxRetry,
	}, nil
}

// Send enqueues the message. A task that already exists for the same
// log and attempt counts as sent.
func (c *AsynqClient) Send(ctx context.Context, msg Message, delay time.Duration) error {
	task, opts, err := newTask(msg, delay, c.maxRetry)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			telemetry.Info("queue.duplicate_task", map[string]any{
				"ingestion_id": msg.LogID,
				"attempt":      msg.Attempt,
			})
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeIngestionComplete, err)
	}
	telemetry.Info("queue.enqueued", map[string]any{
		"task_id":      info.ID,
		"queue":        info.Queue,
		"ingestion_id": msg.LogID,
		"attempt":      msg.Attempt,
		"request_id":   msg.RequestID,
		"delay_ms":     delay.Milliseconds(),
	})
	return nil
}

func (c *AsynqClient) Close() error {
	return c.client.Close()
}

func newTask(msg Message, delay time.Duration, maxRetry int) (*asynq.Task, []asynq.Option, error) {
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	if msg.EnqueuedAt == "" {
		msg.EnqueuedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	if delay < 0 {
		delay = 0
	}
	opts := []asynq.Option{
		asynq.TaskID(TaskID(msg.LogID, msg.Attempt)),
		asynq.MaxRetry(maxRetry),
		asynq.ProcessIn(delay),
		asynq.Timeout(30 * time.Second),
	}
	return asynq.NewTask(TypeIngestionComplete, payload), opts, nil
}

var _ Client = (*AsynqClient)(nil)
