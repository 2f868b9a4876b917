package search

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/shared/server/middleware"
	"servicedocs-backend/internal/shared/server/respond"
)

// Handler exposes the hybrid search over HTTP.
type Handler struct {
	Engine *Engine
}

// NewHandler constructs a Handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{Engine: engine}
}

// RegisterRoutes attaches search routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/fixes/search", h.search)
}

type searchRequest struct {
	Query         string   `json:"query"`
	Limit         *int     `json:"limit"`
	MinSimilarity *float64 `json:"minSimilarity"`
}

// ResultResponse is a fix plus its score and strategy.
type ResultResponse struct {
	fixes.Response
	Similarity float64   `json:"similarity"`
	MatchType  MatchType `json:"matchType"`
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", "invalid JSON body", nil)
		return
	}

	q := Query{
		UserID:        middleware.UserIDFromContext(c),
		Text:          req.Query,
		Limit:         DefaultLimit,
		MinSimilarity: DefaultMinSimilarity,
	}
	if req.Limit != nil {
		q.Limit = *req.Limit
		if q.Limit == 0 {
			q.Limit = -1
		}
	}
	if req.MinSimilarity != nil {
		q.MinSimilarity = *req.MinSimilarity
	}

	results, err := h.Engine.Search(c.Request.Context(), q)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "INTERNAL", "search failed", nil)
		}
		return
	}

	out := make([]ResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, ResultResponse{
			Response:   fixes.ToResponse(r.Fix),
			Similarity: r.Similarity,
			MatchType:  r.MatchType,
		})
	}
	respond.OK(c, gin.H{"results": out, "count": len(out)})
}
