package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/storage/object"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/shared/util"
)

const octetStream = "application/octet-stream"

// LogPurger removes ingestion history attached to a document.
type LogPurger interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
	Logs  LogPurger
	Now   func() time.Time
}

// FileInput is an uploaded file as received from the transport.
type FileInput struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type CreateInput struct {
	Title       string
	Description string
	File        *FileInput
}

// UpdateInput carries optional changes; nil fields are left untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	File        *FileInput
}

// Create stores the file and records the document as uploaded.
func (s *Service) Create(ctx context.Context, actor access.Principal, in CreateInput) (Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Document{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.File == nil || in.File.Body == nil || strings.TrimSpace(in.File.Name) == "" {
		return Document{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}

	stored, contentType, err := s.store(ctx, *in.File)
	if err != nil {
		return Document{}, err
	}

	now := s.now()
	doc := Document{
		ID:              uuid.NewString(),
		OwnerID:         actor.UserID,
		Title:           title,
		Description:     strings.TrimSpace(in.Description),
		StorageLocation: s.Store.Kind(),
		FilePath:        stored.Pointer,
		FileName:        in.File.Name,
		FileType:        contentType,
		SizeBytes:       stored.SizeBytes,
		Status:          StatusUploaded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		s.cleanup(ctx, doc.ID, stored.Pointer)
		return Document{}, err
	}

	telemetry.Info("document.created", map[string]any{
		"document_id": doc.ID,
		"user_id":     actor.UserID,
		"size_bytes":  doc.SizeBytes,
		"file_type":   doc.FileType,
	})
	return doc, nil
}

func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	return s.Repo.GetByID(ctx, id)
}

// List returns a page of documents, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Document, int, error) {
	q.Page, q.Limit = util.ClampPaging(q.Page, q.Limit)
	return s.Repo.List(ctx, q)
}

// Open returns the document together with a reader over its stored bytes.
// Callers must close the reader.
func (s *Service) Open(ctx context.Context, id string) (Document, io.ReadCloser, error) {
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.Store.Open(ctx, doc.FilePath)
	if err != nil {
		return Document{}, nil, fmt.Errorf("open stored file: %w", err)
	}
	return doc, rc, nil
}

// maxUpdateAttempts bounds how often Update re-reads a document whose status
// moved under it before giving up with ErrStatusChanged.
const maxUpdateAttempts = 3

// Update applies the status-gated edit rule, then the requested changes.
// The write is guarded on the status the policy decision was based on; when
// ingestion completes in between, the rule is evaluated again on a fresh read.
// A replaced file is removed from the store once the row points elsewhere.
func (s *Service) Update(ctx context.Context, actor access.Principal, id string, in UpdateInput) (Document, error) {
	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return Document{}, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
	}
	replacing := in.File != nil && in.File.Body != nil && strings.TrimSpace(in.File.Name) != ""

	var (
		stored      object.Object
		contentType string
		saved       bool
		previous    string
		transition  string
	)
	discard := func() {
		if saved {
			s.cleanup(ctx, id, stored.Pointer)
		}
	}

	for attempt := 1; ; attempt++ {
		doc, err := s.Repo.GetByID(ctx, id)
		if err != nil {
			discard()
			return Document{}, err
		}
		ingested := doc.Status == StatusIngested
		if msg := access.UpdateDenial(actor, doc.OwnerID, ingested); msg != "" {
			discard()
			return Document{}, &ForbiddenError{Message: msg}
		}
		expected := doc.Status

		if in.Title != nil {
			doc.Title = title
		}
		if in.Description != nil {
			doc.Description = strings.TrimSpace(*in.Description)
		}
		previous = ""
		if replacing {
			if !saved {
				stored, contentType, err = s.store(ctx, *in.File)
				if err != nil {
					return Document{}, err
				}
				saved = true
			}
			previous = doc.FilePath
			doc.StorageLocation = s.Store.Kind()
			doc.FilePath = stored.Pointer
			doc.FileName = in.File.Name
			doc.FileType = contentType
			doc.SizeBytes = stored.SizeBytes
		}

		transition = ""
		if access.ResetsOnEdit(actor, ingested) {
			doc.Status = StatusUploaded
			transition = string(StatusIngested) + "->" + string(StatusUploaded)
		}

		err = s.Repo.Update(ctx, doc, expected)
		if err == nil {
			break
		}
		if errors.Is(err, ErrStatusChanged) && attempt < maxUpdateAttempts {
			telemetry.Warn("document.update_status_changed", map[string]any{
				"document_id": id,
				"expected":    string(expected),
				"attempt":     attempt,
			})
			continue
		}
		discard()
		return Document{}, err
	}
	if previous != "" && previous != stored.Pointer {
		s.cleanup(ctx, id, previous)
	}

	updated, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	fields := map[string]any{
		"document_id":   id,
		"user_id":       actor.UserID,
		"file_replaced": previous != "",
	}
	if transition != "" {
		fields["status_transition"] = transition
	}
	telemetry.Info("document.updated", fields)
	return updated, nil
}

// Delete is admin only. Logs go first, then the row, then the stored bytes.
func (s *Service) Delete(ctx context.Context, actor access.Principal, id string) error {
	if !access.CanDeleteDocument(actor.Role) {
		return &ForbiddenError{Message: "Only admin can delete documents"}
	}
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.Logs != nil {
		if err := s.Logs.DeleteByDocument(ctx, id); err != nil {
			return fmt.Errorf("delete ingestion logs: %w", err)
		}
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cleanup(ctx, id, doc.FilePath)

	telemetry.Info("document.deleted", map[string]any{
		"document_id": id,
		"user_id":     actor.UserID,
	})
	return nil
}

func (s *Service) store(ctx context.Context, f FileInput) (object.Object, string, error) {
	head, body, err := object.Sniff(f.Body)
	if err != nil {
		return object.Object{}, "", fmt.Errorf("%w: unable to read file", ErrInvalidInput)
	}
	stored, err := s.Store.Save(ctx, f.Name, body)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return object.Object{}, "", err
		}
		return object.Object{}, "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	contentType := strings.TrimSpace(f.ContentType)
	if contentType == "" || strings.EqualFold(contentType, octetStream) {
		contentType = object.DetectContentType(head)
	}
	return stored, contentType, nil
}

func (s *Service) cleanup(ctx context.Context, documentID, pointer string) {
	if pointer == "" {
		return
	}
	if err := s.Store.Delete(ctx, pointer); err != nil {
		telemetry.Warn("document.file_cleanup_failed", map[string]any{
			"document_id": documentID,
			"pointer":     pointer,
			"error":       err,
		})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
