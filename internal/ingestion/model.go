// Package ingestion runs the simulated ingestion workflow: trigger, delayed
// completion, retry, cancel and the history read over ingestion logs.
package ingestion

import "time"

// Status is the lifecycle state of an ingestion log.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Response messages persisted on the log.
const (
	MsgCompleted       = "Ingestion completed successfully"
	MsgFailed          = "Ingestion failed due to processing error"
	MsgCancelled       = "Ingestion was cancelled"
	MsgRetrying        = "Retrying ingestion..."
	MsgCancelledByUser = "Ingestion cancelled by admin"
)

// UnknownDocument labels history rows whose document is gone.
const UnknownDocument = "Unknown Document"

// SystemActor labels history rows without a triggering user.
const SystemActor = "System"

// ParseStatus accepts the five known statuses.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return s, true
	default:
		return "", false
	}
}

// IsOpen reports whether a completion may still land on the log.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInProgress
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanCancel is false only for completed and failed; cancelling twice is allowed.
func (s Status) CanCancel() bool {
	return s.IsOpen() || s == StatusCancelled
}

// Message returns the persisted message for a resolved status.
func (s Status) Message() string {
	switch s {
	case StatusCompleted:
		return MsgCompleted
	case StatusFailed:
		return MsgFailed
	case StatusCancelled:
		return MsgCancelled
	default:
		return ""
	}
}

// Log is one ingestion attempt over a document.
type Log struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId,omitempty"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type DocumentRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Detail is a log with its document and user resolved. Either may be nil.
type Detail struct {
	Log
	Document *DocumentRef `json:"document"`
	User     *UserRef     `json:"user"`
}

// HistoryQuery filters the history listing. An empty Status means all.
type HistoryQuery struct {
	Page   int
	Limit  int
	Status Status
	Search string
}

type HistoryEntry struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	DocumentTitle string    `json:"documentTitle"`
	Status        Status    `json:"status"`
	Message       string    `json:"message"`
	TriggeredBy   string    `json:"triggeredBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CompletionJob is what a scheduler delivers once the delay elapses.
type CompletionJob struct {
	LogID     string `json:"logId"`
	Attempt   int    `json:"attempt"`
	RequestID string `json:"requestId,omitempty"`
}
