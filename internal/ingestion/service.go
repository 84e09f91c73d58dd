package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docvault-backend/internal/access"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/shared/metrics"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/shared/util"
	"docvault-backend/internal/users"
)

const DefaultDelay = 3 * time.Second

var tracer = otel.Tracer("docvault-backend/internal/ingestion")

// DocumentLookup checks that a document exists.
type DocumentLookup interface {
	GetByID(ctx context.Context, id string) (documents.Document, error)
}

// Service runs the ingestion state machine.
type Service struct {
	Repo      Repo
	Documents DocumentLookup
	Users     UserLookup
	Scheduler Scheduler
	Resolver  Resolver
	Delay     time.Duration
	// RetryRearm schedules a fresh completion on retry.
	RetryRearm bool
	Now        func() time.Time
}

// TriggerResult is returned as soon as the log is in progress.
type TriggerResult struct {
	IngestionID string
	Status      Status
}

// Trigger opens a log for the document and schedules its completion.
func (s *Service) Trigger(ctx context.Context, actor access.Principal, documentID string) (TriggerResult, error) {
	ctx, span := tracer.Start(ctx, "ingestion.Trigger")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID))

	if _, err := s.Documents.GetByID(ctx, documentID); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return TriggerResult{}, policyErr(ErrNotFound, MsgDocumentNotFound)
		}
		return TriggerResult{}, err
	}

	// Role and entitlement are re-read so a revoked grant applies before the token expires.
	user, err := s.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return TriggerResult{}, policyErr(ErrNotFound, MsgUserNotFound)
		}
		return TriggerResult{}, err
	}
	if !access.CanTriggerIngestion(user.Role, user.CanTriggerIngestion) {
		return TriggerResult{}, policyErr(ErrForbidden, MsgTriggerForbidden)
	}

	log := Log{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     user.ID,
		Status:     StatusPending,
		Attempt:    1,
		CreatedAt:  s.now(),
	}
	if err := s.Repo.CreateOpen(ctx, log); err != nil {
		if errors.Is(err, ErrConflict) {
			return TriggerResult{}, policyErr(ErrConflict, MsgAlreadyOpen)
		}
		return TriggerResult{}, err
	}
	span.SetAttributes(attribute.String("ingestion.id", log.ID))

	if err := s.Repo.Advance(ctx, log.ID, log.Attempt); err != nil {
		return TriggerResult{}, fmt.Errorf("advance ingestion: %w", err)
	}

	job := CompletionJob{LogID: log.ID, Attempt: log.Attempt, RequestID: requestIDFromContext(ctx)}
	if err := s.Scheduler.Schedule(detached(ctx), job, s.delay()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schedule completion")
		return TriggerResult{}, fmt.Errorf("schedule completion: %w", err)
	}

	metrics.IncIngestionTriggered()
	telemetry.Info("ingestion.triggered", map[string]any{
		"ingestion_id":      log.ID,
		"document_id":       documentID,
		"user_id":           user.ID,
		"request_id":        job.RequestID,
		"status_transition": string(StatusPending) + "->" + string(StatusInProgress),
		"delay_ms":          s.delay().Milliseconds(),
	})
	return TriggerResult{IngestionID: log.ID, Status: StatusInProgress}, nil
}

// Complete applies a delivered job. Jobs for a superseded attempt or a log
// that is no longer open are dropped.
func (s *Service) Complete(ctx context.Context, job CompletionJob) error {
	ctx, span := tracer.Start(ctx, "ingestion.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingestion.id", job.LogID),
		attribute.Int("ingestion.attempt", job.Attempt),
	)

	status := s.resolver().Resolve()
	log, applied, err := s.Repo.Resolve(ctx, job.LogID, job.Attempt, status, status.Message())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.stale(job, "")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		return fmt.Errorf("resolve ingestion %s: %w", job.LogID, err)
	}
	if !applied {
		s.stale(job, log.Status)
		return nil
	}

	metrics.IncIngestionResolved(string(status))
	metrics.ObserveIngestionResolutionMs(float64(log.UpdatedAt.Sub(log.CreatedAt).Milliseconds()))
	telemetry.Info("ingestion.completed", map[string]any{
		"ingestion_id":      log.ID,
		"document_id":       log.DocumentID,
		"attempt":           job.Attempt,
		"request_id":        job.RequestID,
		"status_transition": "open->" + string(status),
	})
	return nil
}

func (s *Service) stale(job CompletionJob, current Status) {
	metrics.IncIngestionStale()
	telemetry.Info("ingestion.stale_completion", map[string]any{
		"ingestion_id":   job.LogID,
		"attempt":        job.Attempt,
		"current_status": string(current),
		"request_id":     job.RequestID,
	})
}

// Status returns the log with its document and user resolved.
func (s *Service) Status(ctx context.Context, id string) (Detail, error) {
	detail, err := s.Repo.Detail(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Detail{}, policyErr(ErrNotFound, MsgLogNotFound)
	}
	return detail, err
}

// History returns a page of logs, newest first.
func (s *Service) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, int, error) {
	q.Page, q.Limit = util.ClampPaging(q.Page, q.Limit)
	return s.Repo.History(ctx, q)
}

// ParseHistoryStatus maps the raw status filter; "" and "all" mean no filter.
func ParseHistoryStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return "", nil
	}
	status, ok := ParseStatus(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// Retry forces the log back to pending under a new attempt.
func (s *Service) Retry(ctx context.Context, actor access.Principal, id string) (Log, error) {
	log, err := s.Repo.Retry(ctx, id, MsgRetrying)
	switch {
	case errors.Is(err, ErrNotFound):
		return Log{}, policyErr(ErrNotFound, MsgLogNotFound)
	case errors.Is(err, ErrConflict):
		return Log{}, policyErr(ErrConflict, MsgAlreadyOpen)
	case err != nil:
		return Log{}, err
	}

	metrics.IncIngestionRetried()
	fields := map[string]any{
		"ingestion_id":      log.ID,
		"document_id":       log.DocumentID,
		"user_id":           actor.UserID,
		"attempt":           log.Attempt,
		"status_transition": "->" + string(StatusPending),
		"rearmed":           s.RetryRearm,
	}
	if s.RetryRearm {
		job := CompletionJob{LogID: log.ID, Attempt: log.Attempt, RequestID: requestIDFromContext(ctx)}
		if err := s.Scheduler.Schedule(detached(ctx), job, s.delay()); err != nil {
			// The sweeper picks the log up once it goes stale.
			fields["error"] = err
			telemetry.Warn("ingestion.retry_schedule_failed", fields)
			return log, nil
		}
	}
	telemetry.Info("ingestion.retried", fields)
	return log, nil
}

// Cancel stops an open log. Completed and failed logs cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, actor access.Principal, id string) (Log, error) {
	log, err := s.Repo.Cancel(ctx, id, MsgCancelledByUser)
	switch {
	case errors.Is(err, ErrNotFound):
		return Log{}, policyErr(ErrNotFound, MsgLogNotFound)
	case errors.Is(err, ErrInvalidStatus):
		return Log{}, policyErr(ErrForbidden, MsgCannotCancel)
	case err != nil:
		return Log{}, err
	}
	telemetry.Info("ingestion.cancelled", map[string]any{
		"ingestion_id":      log.ID,
		"document_id":       log.DocumentID,
		"user_id":           actor.UserID,
		"status_transition": "->" + string(StatusCancelled),
	})
	return log, nil
}

// DeleteByDocument purges the logs of a document being removed.
func (s *Service) DeleteByDocument(ctx context.Context, documentID string) error {
	return s.Repo.DeleteByDocument(ctx, documentID)
}

func (s *Service) delay() time.Duration {
	if s.Delay <= 0 {
		return DefaultDelay
	}
	return s.Delay
}

func (s *Service) resolver() Resolver {
	if s.Resolver == nil {
		return DeterministicResolver{}
	}
	return s.Resolver
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
