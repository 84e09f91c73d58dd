package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/auth"
	"docvault-backend/internal/shared/server/respond"
)

const (
	userIDKey      = "userId"
	userEmailKey   = "userEmail"
	userRoleKey    = "userRole"
	entitlementKey = "canTriggerIngestion"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth validates the bearer JWT and stores the principal in context.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" || verifier == nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		role, err := access.ParseRole(claims.Role)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Set(userRoleKey, role)
		c.Set(entitlementKey, claims.CanTriggerIngestion)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		c.Next()
	}
}

// RequireRoles rejects callers whose role is not in roles.
func RequireRoles(roles ...access.Role) gin.HandlerFunc {
	allowed := access.NewRoleSet(roles...)
	return func(c *gin.Context) {
		if !access.RoleAllowed(RoleFromContext(c), allowed) {
			respond.Error(c, http.StatusForbidden, "forbidden", "Insufficient role", nil)
			return
		}
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}

// RoleFromContext fetches the caller role set by the auth middleware.
func RoleFromContext(c *gin.Context) access.Role {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userRoleKey)
	if role, ok := val.(access.Role); ok {
		return role
	}
	return ""
}

// PrincipalFromContext assembles the caller identity for policy checks.
func PrincipalFromContext(c *gin.Context) access.Principal {
	p := access.Principal{
		UserID: UserIDFromContext(c),
		Email:  UserEmailFromContext(c),
		Role:   RoleFromContext(c),
	}
	if c != nil {
		p.CanTriggerIngestion = c.GetBool(entitlementKey)
	}
	return p
}
