package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/util"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = email
	r.users[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[id], nil
}

func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]User, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.TrimSpace(q.Search)
	matched := make([]User, 0, len(r.users))
	for _, u := range r.users {
		if !util.ContainsFold(u.Username, needle) && !util.ContainsFold(u.Email, needle) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := util.Offset(q.Page, q.Limit)
	if start >= total {
		return []User{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepo) UpdateRole(ctx context.Context, userID string, role access.Role) (User, error) {
	return r.mutate(ctx, userID, func(u *User) { u.Role = role })
}

func (r *MemoryRepo) UpdatePermissions(ctx context.Context, userID string, canTrigger bool) (User, error) {
	return r.mutate(ctx, userID, func(u *User) { u.CanTriggerIngestion = canTrigger })
}

func (r *MemoryRepo) mutate(ctx context.Context, userID string, fn func(*User)) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	fn(&user)
	user.UpdatedAt = time.Now().UTC()
	r.users[userID] = user
	return user, nil
}
