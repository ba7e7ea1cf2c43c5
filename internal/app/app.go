package app

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	shardedcache "github.com/simp-lee/cache"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/billweb/internal/config"
	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/middleware"
	"github.com/simp-lee/billweb/internal/module/history"
	"github.com/simp-lee/billweb/internal/module/routes"
	"github.com/simp-lee/billweb/internal/route"
	"github.com/simp-lee/billweb/internal/view"
	"github.com/simp-lee/billweb/web"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine   *gin.Engine
	db       *gorm.DB
	cache    shardedcache.CacheInterface // nil unless cache.enabled
	logger   *logger.Logger
	cfg      *config.Config
	registry *route.Registry
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

const defaultServerTimeout = 30 * time.Second

var newHTTPServer = func(addr string, handler http.Handler, timeout time.Duration, maxHeaderBytes int) httpServer {
	if timeout <= 0 {
		timeout = defaultServerTimeout
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// Order: logger, database, route registry, gin engine and middleware,
// template renderer, component check, response cache, history and routes
// modules, routes.
// Anything opened before a failure is closed again.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := config.CloseDatabase(db); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. The visits table is the only schema; migrate whenever history is on.
	if cfg.History.Enabled {
		if err := db.AutoMigrate(&domain.Visit{}); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("auto migration completed")
	}

	// 4. Route registry.
	reg, err := route.Build()
	if err != nil {
		return nil, fmt.Errorf("build route registry: %w", err)
	}

	// 5. Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.RedirectFixedPath = true

	if cfg.Server.CORS.AllowCredentials && slices.Contains(cfg.Server.CORS.AllowOrigins, "*") {
		return nil, errors.New("server.cors.allow_credentials cannot be combined with a \"*\" origin")
	}
	apiCORS := ginx.NewChain().
		When(ginx.PathHasPrefix("/api/"), ginx.CORS(resolveCORSOptions(cfg.Server.Mode, &cfg.Server.CORS)...)).
		Build()

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: cfg.Server.TrustRequestID,
		}),
		middleware.Logger(log.Logger),
		apiCORS,
	)

	// 6. Template renderer and component check.
	var fsys fs.FS
	if cfg.Server.Mode == gin.DebugMode {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}

	basePath := cfg.Router.BasePath
	renderer, err := NewTemplateRenderer(fsys, cfg.Server.Mode == gin.DebugMode, template.FuncMap{
		"urlFor": func(name string) (string, error) {
			return reg.URL(name, basePath)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	if err := checkComponents(reg, renderer.Has); err != nil {
		return nil, err
	}
	engine.HTMLRender = renderer

	// 7. Response cache for the routes API.
	var cache shardedcache.CacheInterface
	if cfg.Cache.Enabled {
		ttl := cfg.Cache.TTLDuration()
		cache = shardedcache.NewCache(shardedcache.Options{
			MaxSize:           cfg.Cache.MaxSize,
			DefaultExpiration: ttl,
			CleanupInterval:   ttl,
			ShardCount:        4,
		})
		defer func() {
			if !success {
				cache.Close()
			}
		}()
	}

	// 8. Modules.
	deps := &RouteDeps{
		Registry: reg,
		Modules:  []Module{routes.NewModule(routes.NewRoutesHandler(reg, basePath), cache)},
		DB:       db,
		Logger:   log.Logger,
		Mode:     cfg.Server.Mode,
		BasePath: basePath,
		Home:     cfg.Router.Home,
	}
	if deps.Home == "" {
		deps.Home = view.BeginInterface.Name
	}

	if cfg.History.Enabled {
		svc := history.NewVisitService(history.NewVisitRepository(db), history.Options{
			MaxPerSession: cfg.History.MaxPerSession,
			RecentLimit:   cfg.History.RecentLimit,
		})
		session := middleware.Session(middleware.SessionConfig{
			CookieName: cfg.History.SessionCookie,
			TTL:        cfg.History.SessionTTLDuration(),
			Secure:     cfg.Server.Mode == gin.ReleaseMode,
		})
		deps.Session = session
		deps.Recorder = history.Recorder(svc, log.Logger)
		deps.History = svc
		deps.RecentLimit = cfg.History.RecentLimit
		deps.Modules = append(deps.Modules, history.NewModule(history.NewHistoryHandler(svc), session))
	}

	// 9. Register all routes.
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	log.Info("route table installed",
		slog.Int("routes", reg.Len()),
		slog.String("base_path", basePath),
		slog.Bool("history", cfg.History.Enabled),
		slog.Bool("api_cache", cache != nil),
	)

	success = true
	return &App{
		engine:   engine,
		db:       db,
		cache:    cache,
		logger:   log,
		cfg:      cfg,
		registry: reg,
	}, nil
}

// Handler returns the wired HTTP handler.
func (a *App) Handler() http.Handler {
	return a.engine
}

// resolveCORSOptions builds the API CORS policy. Debug mode without an
// allowlist admits any origin unless credentials are on; release mode
// without one denies cross-origin requests. MaxAge is assumed validated.
func resolveCORSOptions(mode string, cfg *config.CORSConfig) []ginx.Option[ginx.CORSConfig] {
	opts := []ginx.Option[ginx.CORSConfig]{
		ginx.WithAllowMethods(http.MethodGet, http.MethodHead, http.MethodOptions),
		ginx.WithAllowHeaders("Origin", "Accept", "Content-Type", "X-Request-ID"),
		ginx.WithExposeHeaders("X-Request-ID"),
	}

	switch {
	case len(cfg.AllowOrigins) > 0:
		opts = append(opts, ginx.WithAllowOrigins(cfg.AllowOrigins...))
	case mode == gin.DebugMode && !cfg.AllowCredentials:
		opts = append(opts, ginx.WithAllowOrigins("*"))
	}

	if len(cfg.AllowMethods) > 0 {
		opts = append(opts, ginx.WithAllowMethods(cfg.AllowMethods...))
	}
	if len(cfg.AllowHeaders) > 0 {
		opts = append(opts, ginx.WithAllowHeaders(cfg.AllowHeaders...))
	}
	if cfg.AllowCredentials {
		opts = append(opts, ginx.WithAllowCredentials(true))
	}
	if d, err := time.ParseDuration(cfg.MaxAge); err == nil && d > 0 {
		opts = append(opts, ginx.WithMaxAge(d))
	}

	return opts
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It performs graceful shutdown with a 5-second timeout, then closes the
// response cache, the database and the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, a.cfg.Server.TimeoutDuration(), a.cfg.Server.HeaderBytes())

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.cache != nil {
		a.cache.Close()
	}

	if a.db != nil {
		if err := config.CloseDatabase(a.db); err != nil {
			log.Error("database close error", slog.Any("error", err))
		} else {
			log.Info("database connection closed")
		}
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
