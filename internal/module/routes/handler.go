package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/billweb/internal/pkg"
	"github.com/simp-lee/billweb/internal/route"
)

// RouteView is the JSON form of one declared route.
type RouteView struct {
	Path      string `json:"path"`
	Name      string `json:"name,omitempty"`
	Component string `json:"component"`
	Title     string `json:"title"`
	Group     string `json:"group"`
	URL       string `json:"url"`
}

// RoutesHandler exposes the route table read-only.
type RoutesHandler struct {
	registry *route.Registry
	basePath string
}

// NewRoutesHandler creates a RoutesHandler. basePath is the prefix the page
// routes are mounted under and is folded into each URL.
func NewRoutesHandler(reg *route.Registry, basePath string) *RoutesHandler {
	return &RoutesHandler{registry: reg, basePath: basePath}
}

// List handles GET /api/v1/routes. Routes are returned in declaration order.
func (h *RoutesHandler) List(c *gin.Context) {
	entries := h.registry.Entries()
	views := make([]RouteView, 0, len(entries))
	for _, e := range entries {
		views = append(views, h.toView(e))
	}
	pkg.Success(c, views)
}

// Get handles GET /api/v1/routes/:name.
func (h *RoutesHandler) Get(c *gin.Context) {
	p, err := h.registry.Resolve(c.Param("name"))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	e, _ := h.registry.Match(p)
	pkg.Success(c, h.toView(e))
}

func (h *RoutesHandler) toView(e route.Entry) RouteView {
	return RouteView{
		Path:      e.Path,
		Name:      e.Name,
		Component: e.Component.Name,
		Title:     e.Component.Title,
		Group:     string(e.Component.Group),
		URL:       route.JoinBase(h.basePath, e.Path),
	}
}
