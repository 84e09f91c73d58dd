package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/util"
)

type PGRepo struct {
	DB *sql.DB
}

const userColumns = `id, username, email, password_hash, role, can_trigger_ingestion, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (id, username, email, password_hash, role, can_trigger_ingestion, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		user.ID,
		user.Username,
		strings.ToLower(user.Email),
		user.PasswordHash,
		string(user.Role),
		user.CanTriggerIngestion,
	)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, query, userID))
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, query, strings.ToLower(email)))
}

func (r *PGRepo) List(ctx context.Context, q ListQuery) ([]User, int, error) {
	where := ""
	args := []any{}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, util.LikePattern(search))
		where = ` WHERE username ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\'`
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, q.Limit, util.Offset(q.Page, q.Limit))
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PGRepo) UpdateRole(ctx context.Context, userID string, role access.Role) (User, error) {
	query := `UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.DB.QueryRowContext(ctx, query, userID, string(role)))
}

func (r *PGRepo) UpdatePermissions(ctx context.Context, userID string, canTrigger bool) (User, error) {
	query := `UPDATE users SET can_trigger_ingestion = $2, updated_at = now() WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.DB.QueryRowContext(ctx, query, userID, canTrigger))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var role string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.CanTriggerIngestion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || db.IsInvalidText(err) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.Role = access.Role(role)
	return user, nil
}
