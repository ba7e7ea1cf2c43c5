package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/middleware"
	"github.com/simp-lee/billweb/internal/pkg"
	"github.com/simp-lee/billweb/internal/route"
	"github.com/simp-lee/billweb/web"
)

// RouteDeps holds everything RegisterRoutes wires.
type RouteDeps struct {
	Registry *route.Registry
	Modules  []Module
	DB       *gorm.DB
	Logger   *slog.Logger
	Mode     string // "debug", "release" or "test"

	// BasePath prefixes every page route; "" mounts them at the root.
	BasePath string
	// Home names the route "/" redirects to.
	Home string

	// Session and Recorder run in front of every page when non-nil.
	Session  gin.HandlerFunc
	Recorder gin.HandlerFunc

	// History feeds the "Recent" list on pages; nil leaves it out.
	History     domain.VisitService
	RecentLimit int
}

// NavItem is one link of a page's group navigation.
type NavItem struct {
	Name   string
	Title  string
	URL    string
	Active bool
}

// RegisterRoutes registers static assets, health, the home redirect, the
// declared page routes, module APIs and the 404 handler.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if deps.Registry == nil {
		return errors.New("route registry is nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	home, err := deps.Registry.URL(deps.Home, deps.BasePath)
	if err != nil {
		return fmt.Errorf("resolve home route: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if err := registerStaticRoutes(r, deps.Mode); err != nil {
		return fmt.Errorf("register static routes: %w", err)
	}

	r.GET("/health", healthHandler(deps.DB))

	redirectHome := func(c *gin.Context) {
		c.Redirect(http.StatusFound, home)
	}
	r.GET("/", redirectHome)

	pages := r.Group(pageGroupPath(deps.BasePath))
	if pages.BasePath() != "/" {
		pages.GET("", redirectHome)
	}
	if deps.Session != nil {
		pages.Use(deps.Session)
	}
	if deps.Recorder != nil {
		pages.Use(deps.Recorder)
	}
	if err := deps.Registry.Install(pages, pageActivator(deps)); err != nil {
		return fmt.Errorf("install page routes: %w", err)
	}

	api := r.Group("/api/v1")
	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api)
	}

	r.NoRoute(noRouteHandler())

	return nil
}

func pageGroupPath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return "/"
	}
	return basePath
}

// pageActivator renders an entry's component template. Navigation for the
// component's group is computed once per entry.
func pageActivator(deps *RouteDeps) func(route.Entry) gin.HandlerFunc {
	return func(e route.Entry) gin.HandlerFunc {
		nav := navFor(deps.Registry, e, deps.BasePath)
		group := string(e.Component.Group)

		return func(c *gin.Context) {
			data := gin.H{
				"Title":     e.Component.Title,
				"RouteName": e.Name,
				"Path":      e.Path,
				"Group":     group,
				"Nav":       nav,
				"BasePath":  deps.BasePath,
			}
			if deps.History != nil {
				data["Recent"] = recentVisits(c, deps)
			}
			c.HTML(http.StatusOK, e.Component.Template, data)
		}
	}
}

func navFor(reg *route.Registry, current route.Entry, basePath string) []NavItem {
	entries := reg.InGroup(current.Component.Group)
	items := make([]NavItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, NavItem{
			Name:   e.Name,
			Title:  e.Component.Title,
			URL:    route.JoinBase(basePath, e.Path),
			Active: e.Path == current.Path,
		})
	}
	return items
}

// recentVisits never fails the page; a history error yields an empty list.
func recentVisits(c *gin.Context, deps *RouteDeps) []domain.Visit {
	ctx := c.Request.Context()
	visits, err := deps.History.Recent(ctx, middleware.GetSessionID(c), deps.RecentLimit)
	if err != nil {
		deps.Logger.WarnContext(ctx, "load recent visits failed", slog.Any("error", err))
		return []domain.Visit{}
	}
	return visits
}

// healthHandler pings the database and reports "ok" or "degraded".
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"
		status := "ok"
		code := http.StatusOK

		if err := pingDB(c.Request.Context(), db); err != nil {
			dbStatus = "error"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status": status,
			"components": gin.H{
				"database": dbStatus,
			},
		})
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// noRouteHandler answers unmatched paths: JSON under /api/, otherwise
// whatever renderError picks for the client.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
			return
		}

		renderError(c, http.StatusNotFound, "not found")
	}
}

func registerStaticRoutes(r *gin.Engine, mode string) error {
	if mode == gin.DebugMode {
		debugStaticFS, err := resolveDebugStaticFS()
		if err != nil {
			return fmt.Errorf("resolve debug static filesystem: %w", err)
		}
		fileServer := http.StripPrefix("/static", http.FileServer(http.FS(debugStaticFS)))
		r.GET("/static/*filepath", func(c *gin.Context) {
			fileServer.ServeHTTP(c.Writer, c.Request)
		})
		return nil
	}

	staticFS, err := fs.Sub(web.EmbeddedFS, "static")
	if err != nil {
		return fmt.Errorf("create sub filesystem for static assets: %w", err)
	}
	r.GET("/static/*filepath", cacheStaticHandler(http.FS(staticFS)))
	return nil
}

func resolveDebugStaticFS() (fs.FS, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("resolve current file path")
	}

	projectRoot := filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", ".."))
	staticDir := filepath.Join(projectRoot, "web", "static")
	if _, err := os.Stat(staticDir); err != nil {
		return nil, fmt.Errorf("stat static directory %q: %w", staticDir, err)
	}

	return os.DirFS(staticDir), nil
}

// cacheStaticHandler serves release-mode assets with a one-day Cache-Control.
func cacheStaticHandler(fsys http.FileSystem) gin.HandlerFunc {
	fileServer := http.StripPrefix("/static", http.FileServer(fsys))
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}

// checkComponents fails when an entry's component has no page template, so a
// broken binding surfaces at startup instead of on first navigation.
func checkComponents(reg *route.Registry, has func(string) bool) error {
	var missing []string
	for _, e := range reg.Entries() {
		if !has(e.Component.Template) {
			missing = append(missing, fmt.Sprintf("%s (%s)", e.Component.Name, e.Component.Template))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing component templates: %s", strings.Join(missing, ", "))
	}
	return nil
}
