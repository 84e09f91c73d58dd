package ingestion

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

// Handler wires HTTP handlers to the ingestion service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches ingestion routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/ingestion")
	g.POST("/trigger/:documentId", h.trigger)
	g.GET("/status/:id", h.status)
	g.GET("/history", h.history)

	admin := g.Group("", middleware.RequireRoles(access.RoleAdmin))
	admin.PATCH("/retry/:id", h.retry)
	admin.PATCH("/cancel/:id", h.cancel)
}

func (h *Handler) trigger(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	res, err := h.Svc.Trigger(ctx, middleware.PrincipalFromContext(c), documentID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Set(middleware.IngestionIDKey, res.IngestionID)
	c.Set(middleware.StatusTransitionKey, string(StatusPending)+"->"+string(res.Status))
	respond.OK(c, gin.H{
		"message":     "Ingestion triggered",
		"ingestionId": res.IngestionID,
	})
}

func (h *Handler) status(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.IngestionIDKey, id)
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, policyErr(ErrNotFound, MsgLogNotFound))
		return
	}

	detail, err := h.Svc.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, detail)
}

func (h *Handler) history(c *gin.Context) {
	status, err := ParseHistoryStatus(c.Query("status"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid status filter", nil)
		return
	}
	page, limit := util.ParsePaging(c.Query("page"), c.Query("limit"))
	entries, total, err := h.Svc.History(c.Request.Context(), HistoryQuery{
		Page:   page,
		Limit:  limit,
		Status: status,
		Search: c.Query("search"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, respond.NewPage(entries, total, page, limit))
}

func (h *Handler) retry(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.IngestionIDKey, id)
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, policyErr(ErrNotFound, MsgLogNotFound))
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	log, err := h.Svc.Retry(ctx, middleware.PrincipalFromContext(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.DocumentIDKey, log.DocumentID)
	c.Set(middleware.StatusTransitionKey, "->"+string(StatusPending))
	respond.OK(c, gin.H{"message": "Ingestion retry initiated"})
}

func (h *Handler) cancel(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.IngestionIDKey, id)
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, policyErr(ErrNotFound, MsgLogNotFound))
		return
	}

	log, err := h.Svc.Cancel(c.Request.Context(), middleware.PrincipalFromContext(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.DocumentIDKey, log.DocumentID)
	c.Set(middleware.StatusTransitionKey, "->"+string(StatusCancelled))
	respond.OK(c, gin.H{"message": "Ingestion cancelled"})
}

func writeError(c *gin.Context, err error) {
	msg := ""
	var pe *PolicyError
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", fallback(msg, "Not found"), nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", fallback(msg, "Forbidden"), nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", fallback(msg, MsgAlreadyOpen), nil)
	case errors.Is(err, ErrInvalidStatus):
		respond.Error(c, http.StatusBadRequest, "validation_error", fallback(msg, "Invalid status"), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "Internal server error", nil)
	}
}

func fallback(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}
