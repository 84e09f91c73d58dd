package users

import (
	"context"
	"errors"

	"docvault-backend/internal/access"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

type Repo interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, q ListQuery) ([]User, int, error)
	UpdateRole(ctx context.Context, userID string, role access.Role) (User, error)
	UpdatePermissions(ctx context.Context, userID string, canTrigger bool) (User, error)
}
