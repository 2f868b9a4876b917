package fixes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

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

// RegisterRoutes attaches fix routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/fixes", h.list)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	filter := ListFilter{MachineType: c.Query("machineType")}
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", "limit must be an integer", nil)
			return
		}
		filter.Limit = parsed
		if parsed == 0 {
			filter.Limit = -1
		}
	}

	list, err := h.Svc.List(c.Request.Context(), userID, filter)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "INTERNAL", "failed to list fixes", nil)
		}
		return
	}

	respond.OK(c, gin.H{"fixes": ToResponses(list)})
}
