package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/util"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, owner_id, title, description, storage_location, file_path, file_name, file_type, size_bytes, status, created_at, updated_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    owner_id,
    title,
    description,
    storage_location,
    file_path,
    file_name,
    file_type,
    size_bytes,
    status,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`

	status := doc.Status
	if status == "" {
		status = StatusUploaded
	}
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.Description,
		doc.StorageLocation,
		doc.FilePath,
		doc.FileName,
		doc.FileType,
		doc.SizeBytes,
		string(status),
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) List(ctx context.Context, q ListQuery) ([]Document, int, error) {
	where := ""
	args := []any{}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, util.LikePattern(search))
		where = ` WHERE title ILIKE $1 ESCAPE '\'`
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	args = append(args, q.Limit, util.Offset(q.Page, q.Limit))
	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		documentColumns, where, len(args)-1, len(args))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// Update rewrites the mutable columns of a document, guarded on the status
// the caller based its decision on.
func (r *PGRepo) Update(ctx context.Context, doc Document, expected Status) error {
	const query = `
UPDATE documents SET
    title = $2,
    description = $3,
    storage_location = $4,
    file_path = $5,
    file_name = $6,
    file_type = $7,
    size_bytes = $8,
    status = $9,
    updated_at = now()
WHERE id = $1 AND status = $10`
	res, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		doc.Description,
		doc.StorageLocation,
		doc.FilePath,
		doc.FileName,
		doc.FileType,
		doc.SizeBytes,
		string(doc.Status),
		string(expected),
	)
	if err != nil {
		return notFoundOnBadKey(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var current string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, doc.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStatusChanged
}

func (r *PGRepo) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return notFoundOnBadKey(err)
	}
	return requireAffected(res)
}

// Delete removes the row. Ingestion logs cascade through the foreign key.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return notFoundOnBadKey(err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status string
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.Description,
		&doc.StorageLocation,
		&doc.FilePath,
		&doc.FileName,
		&doc.FileType,
		&doc.SizeBytes,
		&status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || db.IsInvalidText(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.Status = Status(status)
	return doc, nil
}

// notFoundOnBadKey treats an id Postgres cannot parse as a uuid like any
// other missing row.
func notFoundOnBadKey(err error) error {
	if db.IsInvalidText(err) {
		return ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
