package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
	"docvault-backend/internal/shared/util"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes expects rg to be behind the auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)

	admin := rg.Group("/users", middleware.RequireRoles(access.RoleAdmin))
	admin.GET("", h.list)
	admin.PATCH("/:id/role", h.updateRole)
	admin.PATCH("/:id/permissions", h.updatePermissions)
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type updatePermissionsRequest struct {
	CanTriggerIngestion *bool `json:"canTriggerIngestion" binding:"required"`
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.Svc.GetByID(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, user)
}

func (h *Handler) list(c *gin.Context) {
	page, limit := util.ParsePaging(c.Query("page"), c.Query("limit"))
	items, total, err := h.Svc.List(c.Request.Context(), ListQuery{
		Page:   page,
		Limit:  limit,
		Search: c.Query("search"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, respond.NewPage(items, total, page, limit))
}

func (h *Handler) updateRole(c *gin.Context) {
	if _, err := uuid.Parse(c.Param("id")); err != nil {
		writeError(c, ErrNotFound)
		return
	}
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "role is required", nil)
		return
	}
	user, err := h.Svc.UpdateRole(c.Request.Context(), middleware.PrincipalFromContext(c), c.Param("id"), req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, user)
}

func (h *Handler) updatePermissions(c *gin.Context) {
	if _, err := uuid.Parse(c.Param("id")); err != nil {
		writeError(c, ErrNotFound)
		return
	}
	var req updatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "canTriggerIngestion is required", nil)
		return
	}
	user, err := h.Svc.UpdatePermissions(c.Request.Context(), middleware.PrincipalFromContext(c), c.Param("id"), *req.CanTriggerIngestion)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, user)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "User not found", nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "Only admin can manage users", nil)
	case errors.Is(err, access.ErrUnknownRole):
		respond.Error(c, http.StatusBadRequest, "bad_request", "Invalid role", gin.H{"allowed": []access.Role{access.RoleAdmin, access.RoleEditor, access.RoleViewer}})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "Failed to process user request", nil)
	}
}
