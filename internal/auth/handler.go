// Package auth exposes self-service registration and password login.
package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/shared/server/respond"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/users"
)

// TokenSigner issues access tokens for authenticated users.
type TokenSigner interface {
	Sign(sub, email, role string, canTrigger bool) (string, error)
}

type Handler struct {
	Users  *users.Service
	Tokens TokenSigner
}

func NewHandler(usersSvc *users.Service, tokens TokenSigner) *Handler {
	return &Handler{Users: usersSvc, Tokens: tokens}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "username, valid email and a password of at least 6 characters are required", nil)
		return
	}
	user, err := h.Users.Register(c.Request.Context(), users.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			respond.Error(c, http.StatusConflict, "conflict", "Email already registered", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "Failed to register user", nil)
		return
	}
	telemetry.Info("auth.registered", map[string]any{"user_id": user.ID})
	respond.JSON(c, http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "email and password are required", nil)
		return
	}
	user, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Invalid credentials", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "Failed to log in", nil)
		return
	}
	token, err := h.Tokens.Sign(user.ID, user.Email, string(user.Role), user.CanTriggerIngestion)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "Failed to issue token", nil)
		return
	}
	respond.OK(c, loginResponse{AccessToken: token})
}
