package ingestion

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrInvalidStatus = errors.New("invalid status")
)

// Caller-facing messages.
const (
	MsgDocumentNotFound = "Document not found"
	MsgUserNotFound     = "User not found"
	MsgLogNotFound      = "Ingestion log not found"
	MsgTriggerForbidden = "You are not allowed to trigger ingestion"
	MsgAlreadyOpen      = "Ingestion for this document is already in progress or pending."
	MsgCannotCancel     = "Cannot cancel completed or failed ingestion"
)

// PolicyError pairs a sentinel with the message shown to the caller.
type PolicyError struct {
	Err     error
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

func (e *PolicyError) Unwrap() error { return e.Err }

func policyErr(sentinel error, msg string) error {
	return &PolicyError{Err: sentinel, Message: msg}
}
