package documents

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
	"docvault-backend/internal/shared/util"
)

const maxUploadSize = 25 << 20 // 25MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.create)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/file", h.download)
	rg.PATCH("/documents/:id", h.update)
	rg.DELETE("/documents/:id", middleware.RequireRoles(access.RoleAdmin), h.delete)
}

func (h *Handler) create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "title is required", nil)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Create(c.Request.Context(), middleware.PrincipalFromContext(c), CreateInput{
		Title:       title,
		Description: c.PostForm("description"),
		File:        fileInput(fileHeader, file),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Set(middleware.DocumentIDKey, doc.ID)
	respond.JSON(c, http.StatusCreated, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	page, limit := util.ParsePaging(c.Query("page"), c.Query("limit"))
	docs, total, err := h.Svc.List(c.Request.Context(), ListQuery{
		Page:   page,
		Limit:  limit,
		Search: c.Query("search"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, respond.NewPage(toResponses(docs), total, page, limit))
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, ErrNotFound)
		return
	}

	doc, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) download(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, ErrNotFound)
		return
	}

	doc, rc, err := h.Svc.Open(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	contentType := doc.FileType
	if contentType == "" {
		contentType = octetStream
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.FileName))
	if doc.SizeBytes > 0 {
		c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		_ = c.Error(err)
	}
}

type updateRequest struct {
	Title       *string `json:"title" form:"title"`
	Description *string `json:"description" form:"description"`
}

func (h *Handler) update(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, ErrNotFound)
		return
	}

	in := UpdateInput{}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
		if err := c.Request.ParseMultipartForm(maxUploadSize); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart body", nil)
			return
		}
		if v, ok := c.GetPostForm("title"); ok {
			in.Title = &v
		}
		if v, ok := c.GetPostForm("description"); ok {
			in.Description = &v
		}
		if fileHeader, err := c.FormFile("file"); err == nil {
			file, err := fileHeader.Open()
			if err != nil {
				respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
				return
			}
			defer file.Close()
			in.File = fileInput(fileHeader, file)
		}
	} else {
		var req updateRequest
		if err := c.ShouldBind(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
		in.Title = req.Title
		in.Description = req.Description
	}

	doc, err := h.Svc.Update(c.Request.Context(), middleware.PrincipalFromContext(c), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)

	if err := h.Svc.Delete(c.Request.Context(), middleware.PrincipalFromContext(c), id); err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"message": fmt.Sprintf("Document %s deleted successfully", id)})
}

func fileInput(fh *multipart.FileHeader, f multipart.File) *FileInput {
	return &FileInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}
}

func writeError(c *gin.Context, err error) {
	var forbidden *ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", forbidden.Message, nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Document not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "), nil)
	case errors.Is(err, ErrStatusChanged):
		respond.Error(c, http.StatusConflict, "conflict", "Document changed during update, retry", nil)
	case errors.Is(err, ErrStorage):
		respond.Error(c, http.StatusInternalServerError, "internal", "Failed to store file", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "Internal server error", nil)
	}
}
