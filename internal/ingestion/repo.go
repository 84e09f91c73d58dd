package ingestion

import (
	"context"
	"time"
)

// Repo defines persistence operations for ingestion logs.
type Repo interface {
	// CreateOpen inserts a pending log. ErrConflict if the document already has an open log.
	CreateOpen(ctx context.Context, log Log) error
	GetByID(ctx context.Context, id string) (Log, error)
	Detail(ctx context.Context, id string) (Detail, error)
	// Advance moves a pending log of the given attempt to in-progress.
	Advance(ctx context.Context, id string, attempt int) error
	// Resolve applies a terminal status if the log is still open on attempt.
	// A completed status also marks the document ingested. The bool reports
	// whether anything changed.
	Resolve(ctx context.Context, id string, attempt int, status Status, message string) (Log, bool, error)
	// Retry resets the log to pending and bumps its attempt.
	Retry(ctx context.Context, id, message string) (Log, error)
	// Cancel sets cancelled. ErrInvalidStatus for completed or failed logs.
	Cancel(ctx context.Context, id, message string) (Log, error)
	History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, int, error)
	// ListStaleOpen returns open logs not touched since before.
	ListStaleOpen(ctx context.Context, before time.Time, limit int) ([]Log, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}
