package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicedocs-backend/internal/queue"
	"servicedocs-backend/internal/shared/server/middleware"
	"servicedocs-backend/internal/shared/server/respond"
)

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
	rg.POST("/documents/uploads", h.initiateUpload)
	rg.POST("/documents/uploads/batch", h.initiateUploadBatch)
	rg.GET("/documents", h.list)
	rg.GET("/documents/status-counts", h.statusCounts)
	rg.GET("/documents/:id", h.get)
	rg.DELETE("/documents/:id", h.delete)
	rg.POST("/documents/:id/reprocess", h.reprocess)
	rg.GET("/documents/:id/url", h.documentURL)
}

func (h *Handler) initiateUpload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", "invalid request body", nil)
		return
	}

	ticket, err := h.Svc.InitiateUpload(c.Request.Context(), middleware.UserIDFromContext(c), req.input())
	if err != nil {
		writeError(c, err, "failed to initiate upload")
		return
	}
	c.Set(middleware.DocumentIDKey, ticket.DocumentID)
	respond.JSON(c, http.StatusCreated, toUploadResponse(ticket))
}

func (h *Handler) initiateUploadBatch(c *gin.Context) {
	var req uploadBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", "invalid request body", nil)
		return
	}

	inputs := make([]UploadInput, 0, len(req.Files))
	for _, f := range req.Files {
		inputs = append(inputs, f.input())
	}
	tickets, err := h.Svc.InitiateUploadBatch(c.Request.Context(), middleware.UserIDFromContext(c), inputs)
	if err != nil {
		writeError(c, err, "failed to initiate uploads")
		return
	}

	resp := make([]UploadResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, toUploadResponse(t))
	}
	respond.JSON(c, http.StatusCreated, gin.H{"uploads": resp})
}

func (h *Handler) list(c *gin.Context) {
	filter := ListFilter{Status: Status(c.Query("status"))}
	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}
	if _, set := c.GetQuery("limit"); set && filter.Limit == 0 {
		filter.Limit = -1
	}

	page, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), filter)
	if err != nil {
		writeError(c, err, "failed to list documents")
		return
	}

	docs := make([]DocumentResponse, 0, len(page.Documents))
	for _, doc := range page.Documents {
		docs = append(docs, toResponse(doc))
	}
	respond.OK(c, listResponse{Documents: docs, Total: page.Total})
}

func (h *Handler) statusCounts(c *gin.Context) {
	counts, err := h.Svc.StatusCounts(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to count documents")
		return
	}
	respond.OK(c, counts)
}

func (h *Handler) get(c *gin.Context) {
	c.Set(middleware.DocumentIDKey, c.Param("id"))
	out, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch document")
		return
	}
	respond.OK(c, detailResponse{
		DocumentResponse: toResponse(out.Document),
		Fixes:            fixesResponse(out),
	})
}

func (h *Handler) delete(c *gin.Context) {
	c.Set(middleware.DocumentIDKey, c.Param("id"))
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		writeError(c, err, "failed to delete document")
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *Handler) reprocess(c *gin.Context) {
	c.Set(middleware.DocumentIDKey, c.Param("id"))
	doc, err := h.Svc.Reprocess(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to reprocess document")
		return
	}
	c.Set(middleware.StatusTransitionKey, reprocessTransition(doc))
	respond.JSON(c, http.StatusAccepted, gin.H{"success": true})
}

func (h *Handler) documentURL(c *gin.Context) {
	c.Set(middleware.DocumentIDKey, c.Param("id"))
	presigned, err := h.Svc.DocumentURL(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to issue document url")
		return
	}
	respond.OK(c, urlResponse{URL: presigned.URL, ExpiresAt: presigned.ExpiresAt})
}

func intQuery(c *gin.Context, name string) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", name+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "document not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error(), nil)
	case errors.Is(err, queue.ErrBusy):
		respond.Error(c, http.StatusServiceUnavailable, "BUSY", "document workers are busy, retry later", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "INTERNAL", fallback, nil)
	}
}
