package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/shared/util"
)

const minPasswordLen = 6

type Service struct {
	Repo     Repo
	HashCost int
	NewID    func() string
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// RegisterInput carries the self-service signup fields.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a viewer without the ingestion entitlement.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" {
		return User{}, errors.New("username and email are required")
	}
	if len(in.Password) < minPasswordLen {
		return User{}, fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return s.create(ctx, username, email, in.Password, access.RoleViewer, false)
}

// Authenticate checks credentials and returns the matching user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	user, err := s.Repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, userID)
}

// List returns a page of users and the total match count.
func (s *Service) List(ctx context.Context, q ListQuery) ([]User, int, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	q.Page, q.Limit = util.ClampPaging(q.Page, q.Limit)
	return s.Repo.List(ctx, q)
}

// UpdateRole changes a user's role. Only admins may call it.
func (s *Service) UpdateRole(ctx context.Context, actor access.Principal, userID, rawRole string) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if !access.CanManageUsers(actor.Role) {
		return User{}, ErrForbidden
	}
	role, err := access.ParseRole(rawRole)
	if err != nil {
		return User{}, err
	}
	user, err := s.Repo.UpdateRole(ctx, userID, role)
	if err != nil {
		return User{}, err
	}
	telemetry.Info("user.role_updated", map[string]any{
		"user_id":  user.ID,
		"role":     string(role),
		"actor_id": actor.UserID,
	})
	return user, nil
}

// UpdatePermissions toggles the ingestion entitlement. Only admins may call it.
func (s *Service) UpdatePermissions(ctx context.Context, actor access.Principal, userID string, canTrigger bool) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if !access.CanManageUsers(actor.Role) {
		return User{}, ErrForbidden
	}
	user, err := s.Repo.UpdatePermissions(ctx, userID, canTrigger)
	if err != nil {
		return User{}, err
	}
	telemetry.Info("user.permissions_updated", map[string]any{
		"user_id":               user.ID,
		"can_trigger_ingestion": canTrigger,
		"actor_id":              actor.UserID,
	})
	return user, nil
}

// EnsureAdmin creates the admin account, or promotes an existing one.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.Repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if _, err := s.Repo.UpdateRole(ctx, existing.ID, access.RoleAdmin); err != nil {
			return User{}, err
		}
		return s.Repo.UpdatePermissions(ctx, existing.ID, true)
	case errors.Is(err, ErrNotFound):
		username, _, _ := strings.Cut(email, "@")
		return s.create(ctx, username, email, password, access.RoleAdmin, true)
	default:
		return User{}, err
	}
}

// CreateWithRole is used by seeding to create users of any role.
func (s *Service) CreateWithRole(ctx context.Context, in RegisterInput, role access.Role, canTrigger bool) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, access.ErrUnknownRole
	}
	return s.create(ctx, strings.TrimSpace(in.Username), strings.ToLower(strings.TrimSpace(in.Email)), in.Password, role, canTrigger)
}

func (s *Service) create(ctx context.Context, username, email, password string, role access.Role, canTrigger bool) (User, error) {
	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		ID:                  s.newID(),
		Username:            username,
		Email:               email,
		PasswordHash:        string(hash),
		Role:                role,
		CanTriggerIngestion: canTrigger,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return s.Repo.GetByID(ctx, user.ID)
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) ready() error {
	if s == nil || s.Repo == nil {
		return errors.New("users service not configured")
	}
	return nil
}
