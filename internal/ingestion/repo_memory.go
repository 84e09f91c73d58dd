package ingestion

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"docvault-backend/internal/documents"
	"docvault-backend/internal/shared/util"
	"docvault-backend/internal/users"
)

// DocumentStore is the slice of the document registry the memory repo needs
// to emulate the Postgres join and the completion side effect.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (documents.Document, error)
	SetStatus(ctx context.Context, id string, status documents.Status) error
}

// UserLookup resolves triggering users.
type UserLookup interface {
	GetByID(ctx context.Context, userID string) (users.User, error)
}

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Log

	Documents DocumentStore
	Users     UserLookup
	now       func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo. docs and usrs may be nil.
func NewMemoryRepo(docs DocumentStore, usrs UserLookup) *MemoryRepo {
	return &MemoryRepo{
		data:      make(map[string]Log),
		Documents: docs,
		Users:     usrs,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) CreateOpen(ctx context.Context, log Log) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openForDocumentLocked(log.DocumentID, "") {
		return ErrConflict
	}
	now := r.now()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = now
	if log.Attempt < 1 {
		log.Attempt = 1
	}
	r.data[log.ID] = log
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Log, error) {
	if err := ctx.Err(); err != nil {
		return Log{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	log, ok := r.data[id]
	if !ok {
		return Log{}, ErrNotFound
	}
	return log, nil
}

func (r *MemoryRepo) Detail(ctx context.Context, id string) (Detail, error) {
	log, err := r.GetByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	detail := Detail{Log: log}
	if doc, ok := r.lookupDocument(ctx, log.DocumentID); ok {
		detail.Document = &DocumentRef{ID: doc.ID, Title: doc.Title, Status: string(doc.Status)}
	}
	if user, ok := r.lookupUser(ctx, log.UserID); ok {
		detail.User = &UserRef{ID: user.ID, Username: user.Username, Email: user.Email, Role: string(user.Role)}
	}
	return detail, nil
}

func (r *MemoryRepo) Advance(ctx context.Context, id string, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	if log.Status != StatusPending || log.Attempt != attempt {
		return nil
	}
	log.Status = StatusInProgress
	log.UpdatedAt = r.now()
	r.data[id] = log
	return nil
}

func (r *MemoryRepo) Resolve(ctx context.Context, id string, attempt int, status Status, message string) (Log, bool, error) {
	if err := ctx.Err(); err != nil {
		return Log{}, false, err
	}
	r.mu.Lock()
	log, ok := r.data[id]
	if !ok {
		r.mu.Unlock()
		return Log{}, false, ErrNotFound
	}
	if !log.Status.IsOpen() || log.Attempt != attempt {
		r.mu.Unlock()
		return log, false, nil
	}
	log.Status = status
	log.Message = message
	log.UpdatedAt = r.now()
	r.data[id] = log
	r.mu.Unlock()

	if status == StatusCompleted && r.Documents != nil {
		err := r.Documents.SetStatus(ctx, log.DocumentID, documents.StatusIngested)
		if err != nil && !errors.Is(err, documents.ErrNotFound) {
			return log, true, err
		}
	}
	return log, true, nil
}

func (r *MemoryRepo) Retry(ctx context.Context, id, message string) (Log, error) {
	if err := ctx.Err(); err != nil {
		return Log{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.data[id]
	if !ok {
		return Log{}, ErrNotFound
	}
	if r.openForDocumentLocked(log.DocumentID, id) {
		return Log{}, ErrConflict
	}
	log.Status = StatusPending
	log.Message = message
	log.Attempt++
	log.UpdatedAt = r.now()
	r.data[id] = log
	return log, nil
}

func (r *MemoryRepo) Cancel(ctx context.Context, id, message string) (Log, error) {
	if err := ctx.Err(); err != nil {
		return Log{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.data[id]
	if !ok {
		return Log{}, ErrNotFound
	}
	if !log.Status.CanCancel() {
		return Log{}, ErrInvalidStatus
	}
	log.Status = StatusCancelled
	log.Message = message
	log.UpdatedAt = r.now()
	r.data[id] = log
	return log, nil
}

func (r *MemoryRepo) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	logs := make([]Log, 0, len(r.data))
	for _, log := range r.data {
		if q.Status != "" && log.Status != q.Status {
			continue
		}
		logs = append(logs, log)
	}
	r.mu.RUnlock()

	needle := strings.TrimSpace(q.Search)
	entries := make([]HistoryEntry, 0, len(logs))
	for _, log := range logs {
		entry := HistoryEntry{
			ID:            log.ID,
			DocumentID:    log.DocumentID,
			DocumentTitle: UnknownDocument,
			Status:        log.Status,
			Message:       log.Message,
			TriggeredBy:   SystemActor,
			CreatedAt:     log.CreatedAt,
		}
		doc, hasDoc := r.lookupDocument(ctx, log.DocumentID)
		if hasDoc {
			entry.DocumentTitle = doc.Title
		}
		if needle != "" && (!hasDoc || !util.ContainsFold(doc.Title, needle)) {
			continue
		}
		if user, ok := r.lookupUser(ctx, log.UserID); ok && user.Email != "" {
			entry.TriggeredBy = user.Email
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})

	total := len(entries)
	start := util.Offset(q.Page, q.Limit)
	if start >= total {
		return []HistoryEntry{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return entries[start:end], total, nil
}

func (r *MemoryRepo) ListStaleOpen(ctx context.Context, before time.Time, limit int) ([]Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Log{}
	for _, log := range r.data {
		if log.Status.IsOpen() && log.UpdatedAt.Before(before) {
			out = append(out, log)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, log := range r.data {
		if log.DocumentID == documentID {
			delete(r.data, id)
		}
	}
	return nil
}

func (r *MemoryRepo) openForDocumentLocked(documentID, exceptID string) bool {
	for id, log := range r.data {
		if id != exceptID && log.DocumentID == documentID && log.Status.IsOpen() {
			return true
		}
	}
	return false
}

func (r *MemoryRepo) lookupDocument(ctx context.Context, id string) (documents.Document, bool) {
	if r.Documents == nil || id == "" {
		return documents.Document{}, false
	}
	doc, err := r.Documents.GetByID(ctx, id)
	return doc, err == nil
}

func (r *MemoryRepo) lookupUser(ctx context.Context, id string) (users.User, bool) {
	if r.Users == nil || id == "" {
		return users.User{}, false
	}
	user, err := r.Users.GetByID(ctx, id)
	return user, err == nil
}

var _ Repo = (*MemoryRepo)(nil)
