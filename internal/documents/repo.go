package documents

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrStorage       = errors.New("failed to store file")
	ErrStatusChanged = errors.New("document status changed")
)

// ForbiddenError carries the caller-facing reason for a denied mutation.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, q ListQuery) ([]Document, int, error)
	// Update writes the mutable columns, including doc.Status, only while
	// the stored status still equals expected.
	Update(ctx context.Context, doc Document, expected Status) error
	SetStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
}
