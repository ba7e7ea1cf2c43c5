package history

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/middleware"
	"github.com/simp-lee/billweb/internal/pkg"
)

// HistoryHandler serves the navigation history API.
type HistoryHandler struct {
	svc domain.VisitService
}

// NewHistoryHandler creates a HistoryHandler with the given service.
func NewHistoryHandler(svc domain.VisitService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// SessionQuery is the query string of GET /api/v1/history/session. A nil
// Limit means the configured recent limit; an explicit value must be 1..100.
type SessionQuery struct {
	Limit *int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// List handles GET /api/v1/history. Session ids are neither returned nor
// filterable.
func (h *HistoryHandler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c)

	result, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// Session handles GET /api/v1/history/session, the caller's own recent
// visits.
func (h *HistoryHandler) Session(c *gin.Context) {
	var q SessionQuery
	if !pkg.BindQuery(c, &q) {
		return
	}

	limit := 0
	if q.Limit != nil {
		limit = *q.Limit
	}

	visits, err := h.svc.Recent(c.Request.Context(), middleware.GetSessionID(c), limit)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, visits)
}
