package users

import (
	"time"

	"docvault-backend/internal/access"
)

type User struct {
	ID                  string      `json:"id"`
	Username            string      `json:"username"`
	Email               string      `json:"email"`
	PasswordHash        string      `json:"-"`
	Role                access.Role `json:"role"`
	CanTriggerIngestion bool        `json:"canTriggerIngestion"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// ListQuery selects a page of users. Search matches username or email.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}
