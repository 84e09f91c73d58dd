package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/util"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const logColumns = `id, document_id, user_id, status, message, attempt, created_at, updated_at`

// CreateOpen relies on the partial unique index over open logs; a
// concurrent trigger loses with SQLSTATE 23505.
func (r *PGRepo) CreateOpen(ctx context.Context, log Log) error {
	const query = `
INSERT INTO ingestion_logs (
    id,
    document_id,
    user_id,
    status,
    message,
    attempt,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, now(), now())`

	attempt := log.Attempt
	if attempt < 1 {
		attempt = 1
	}
	_, err := r.DB.ExecContext(ctx, query,
		log.ID,
		log.DocumentID,
		nullable(log.UserID),
		string(log.Status),
		log.Message,
		attempt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (Log, error) {
	query := `SELECT ` + logColumns + ` FROM ingestion_logs WHERE id = $1 LIMIT 1`
	return scanLog(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) Detail(ctx context.Context, id string) (Detail, error) {
	const query = `
SELECT l.id, l.document_id, l.user_id, l.status, l.message, l.attempt, l.created_at, l.updated_at,
       d.id, d.title, d.status,
       u.id, u.username, u.email, u.role
FROM ingestion_logs l
LEFT JOIN documents d ON d.id = l.document_id
LEFT JOIN users u ON u.id = l.user_id
WHERE l.id = $1`

	var (
		detail                     Detail
		userID                     sql.NullString
		status                     string
		docID, docTitle, docStatus sql.NullString
		uID, uName, uEmail, uRole  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.DocumentID,
		&userID,
		&status,
		&detail.Message,
		&detail.Attempt,
		&detail.CreatedAt,
		&detail.UpdatedAt,
		&docID, &docTitle, &docStatus,
		&uID, &uName, &uEmail, &uRole,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || db.IsInvalidText(err) {
			return Detail{}, ErrNotFound
		}
		return Detail{}, err
	}
	detail.UserID = userID.String
	detail.Status = Status(status)
	if docID.Valid {
		detail.Document = &DocumentRef{ID: docID.String, Title: docTitle.String, Status: docStatus.String}
	}
	if uID.Valid {
		detail.User = &UserRef{ID: uID.String, Username: uName.String, Email: uEmail.String, Role: uRole.String}
	}
	return detail, nil
}

func (r *PGRepo) Advance(ctx context.Context, id string, attempt int) error {
	const query = `
UPDATE ingestion_logs SET status = 'in-progress', updated_at = now()
WHERE id = $1 AND attempt = $2 AND status = 'pending'`
	_, err := r.DB.ExecContext(ctx, query, id, attempt)
	return err
}

// Resolve updates the log and, for completed, the document in one transaction.
func (r *PGRepo) Resolve(ctx context.Context, id string, attempt int, status Status, message string) (Log, bool, error) {
	const update = `
UPDATE ingestion_logs SET status = $3, message = $4, updated_at = now()
WHERE id = $1 AND attempt = $2 AND status IN ('pending', 'in-progress')
RETURNING ` + logColumns

	var (
		resolved Log
		applied  bool
	)
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		log, err := scanLog(tx.QueryRowContext(ctx, update, id, attempt, string(status), message))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		resolved, applied = log, true
		if status != StatusCompleted {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE documents SET status = 'ingested', updated_at = now() WHERE id = $1`, log.DocumentID)
		return err
	})
	if err != nil {
		return Log{}, false, err
	}
	if !applied {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return Log{}, false, err
		}
		return current, false, nil
	}
	return resolved, true, nil
}

// Retry resets the log to pending. Another open log for the same document
// trips the partial unique index.
func (r *PGRepo) Retry(ctx context.Context, id, message string) (Log, error) {
	const query = `
UPDATE ingestion_logs SET status = 'pending', message = $2, attempt = attempt + 1, updated_at = now()
WHERE id = $1
RETURNING ` + logColumns
	log, err := scanLog(r.DB.QueryRowContext(ctx, query, id, message))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Log{}, ErrConflict
		}
		return Log{}, err
	}
	return log, nil
}

func (r *PGRepo) Cancel(ctx context.Context, id, message string) (Log, error) {
	const query = `
UPDATE ingestion_logs SET status = 'cancelled', message = $2, updated_at = now()
WHERE id = $1 AND status IN ('pending', 'in-progress', 'cancelled')
RETURNING ` + logColumns
	log, err := scanLog(r.DB.QueryRowContext(ctx, query, id, message))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return Log{}, getErr
		}
		return Log{}, ErrInvalidStatus
	}
	return log, err
}

func (r *PGRepo) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, int, error) {
	var (
		clauses []string
		args    []any
	)
	if q.Status != "" {
		args = append(args, string(q.Status))
		clauses = append(clauses, fmt.Sprintf("l.status = $%d", len(args)))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, util.LikePattern(search))
		clauses = append(clauses, fmt.Sprintf(`d.title ILIKE $%d ESCAPE '\'`, len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	const from = `
FROM ingestion_logs l
LEFT JOIN documents d ON d.id = l.document_id
LEFT JOIN users u ON u.id = l.user_id`

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	args = append(args, q.Limit, util.Offset(q.Page, q.Limit))
	query := fmt.Sprintf(`
SELECT l.id, l.document_id, COALESCE(d.title, '%s'), l.status, l.message, COALESCE(u.email, '%s'), l.created_at%s%s
ORDER BY l.created_at DESC, l.id DESC
LIMIT $%d OFFSET $%d`, UnknownDocument, SystemActor, from, where, len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var (
			entry  HistoryEntry
			status string
		)
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &entry.DocumentTitle, &status, &entry.Message, &entry.TriggeredBy, &entry.CreatedAt); err != nil {
			return nil, 0, err
		}
		entry.Status = Status(status)
		out = append(out, entry)
	}
	return out, total, rows.Err()
}

func (r *PGRepo) ListStaleOpen(ctx context.Context, before time.Time, limit int) ([]Log, error) {
	query := `SELECT ` + logColumns + ` FROM ingestion_logs
WHERE status IN ('pending', 'in-progress') AND updated_at < $1
ORDER BY updated_at ASC, id ASC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Log{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM ingestion_logs WHERE document_id = $1`, documentID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (Log, error) {
	var (
		log    Log
		userID sql.NullString
		status string
	)
	err := row.Scan(
		&log.ID,
		&log.DocumentID,
		&userID,
		&status,
		&log.Message,
		&log.Attempt,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || db.IsInvalidText(err) {
			return Log{}, ErrNotFound
		}
		return Log{}, err
	}
	log.UserID = userID.String
	log.Status = Status(status)
	return log, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
