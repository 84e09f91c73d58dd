// Package workerproc decodes ingestion:complete tasks and applies them.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"docvault-backend/internal/ingestion"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/shared/telemetry"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrDecode indicates a payload that can never be processed.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrProcess indicates completion failed after successful parsing.
type ErrProcess struct {
	LogID     string
	Attempt   int
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "complete ingestion"
	}
	return "complete ingestion: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the task payload.
func ParseMessage(body []byte) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	msg, err := queue.DecodeMessage(body)
	if err != nil {
		return msg, meta, ErrDecode{Meta: meta, Err: err}
	}
	return msg, meta, nil
}

// HandleMessage parses the payload and hands the job to target.
func HandleMessage(ctx context.Context, target ingestion.Completer, body []byte) error {
	if target == nil {
		return errors.New("ingestion service not configured")
	}
	msg, meta, err := ParseMessage(body)
	if err != nil {
		fields := map[string]any{
			"body_len": meta.BodyLen,
			"error":    err,
		}
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		telemetry.Error("worker.ingestion.decode_failed", fields)
		return err
	}

	job := queue.JobFromMessage(msg)
	ctx = ingestion.WithRequestID(ctx, msg.RequestID)
	if err := target.Complete(ctx, job); err != nil {
		return ErrProcess{LogID: msg.LogID, Attempt: msg.Attempt, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// TaskHandler adapts HandleMessage to asynq. Undecodable payloads skip
// retries; completion errors are retried up to the task's MaxRetry.
func TaskHandler(target ingestion.Completer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		err := HandleMessage(ctx, target, task.Payload())
		if err == nil {
			return nil
		}
		var decodeErr ErrDecode
		if errors.As(err, &decodeErr) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		fields := map[string]any{"error": err}
		var procErr ErrProcess
		if errors.As(err, &procErr) {
			fields["ingestion_id"] = procErr.LogID
			fields["attempt"] = procErr.Attempt
			if strings.TrimSpace(procErr.RequestID) != "" {
				fields["request_id"] = procErr.RequestID
			}
		}
		telemetry.Error("worker.ingestion.failed", fields)
		return err
	}
}

// NewMux routes ingestion:complete tasks to target.
func NewMux(target ingestion.Completer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(queue.TypeIngestionComplete, TaskHandler(target))
	return mux
}

// NewServer builds an asynq server for the completion queue.
func NewServer(opts queue.RedisOptions, concurrency int) *asynq.Server {
	if concurrency < 1 {
		concurrency = 1
	}
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{"default": 1},
		},
	)
}
