package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Router   RouterConfig   `koanf:"router"`
	History  HistoryConfig  `koanf:"history"`
	Cache    CacheConfig    `koanf:"cache"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	Mode          string `koanf:"mode"`
	Timeout       string `koanf:"timeout"`
	MaxHeaderSize string `koanf:"max_header_size"`

	// TrustRequestID reuses a well-formed incoming X-Request-ID instead of
	// always generating one. Enable only behind a proxy that sets it.
	TrustRequestID bool `koanf:"trust_request_id"`

	CORS CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS settings for the JSON API. Empty method and header
// lists keep the read-only API defaults.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// CacheConfig controls the in-memory response cache of the routes API.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	TTL     string `koanf:"ttl"`
	MaxSize int    `koanf:"max_size"` // entries per shard
}

// RouterConfig controls where the page routes are mounted.
type RouterConfig struct {
	// BasePath prefixes every page route, like a history-mode base URL.
	BasePath string `koanf:"base_path"`
	// Home is the route name "/" redirects to.
	Home string `koanf:"home"`
}

// HistoryConfig controls per-session navigation history.
type HistoryConfig struct {
	Enabled       bool   `koanf:"enabled"`
	MaxPerSession int    `koanf:"max_per_session"`
	RecentLimit   int    `koanf:"recent_limit"`
	SessionCookie string `koanf:"session_cookie"`
	SessionTTL    string `koanf:"session_ttl"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

const (
	defaultHome          = "beginInterface"
	defaultSessionCookie = "nav_session"
	defaultSessionTTL    = "720h"
	defaultMaxPerSession = 200
	defaultRecentLimit   = 10
	defaultMaxHeaderSize = "1MB"
	defaultCacheTTL      = "5m"
	defaultCacheMaxSize  = 64
)

// Load reads configuration from a YAML or TOML file, chosen by extension,
// and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__HISTORY__MAX_PER_SESSION=50 overrides history.max_per_session.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	parser, err := parserFor(configPath)
	if err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parserFor(configPath string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return TOMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: must be .yaml, .yml or .toml", ext)
	}
}

// Validate checks cross-field constraints, fills defaults and normalizes
// values in place.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRouter(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateLog()
}

// HeaderBytes returns server.max_header_size in bytes. Validate must have
// succeeded first.
func (s *ServerConfig) HeaderBytes() int {
	n, err := units.FromHumanSize(s.MaxHeaderSize)
	if err != nil {
		return 0
	}
	return int(n)
}

// TimeoutDuration returns server.timeout, or 0 when unset.
func (s *ServerConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

// TTLDuration returns cache.ttl. Validate must have succeeded first.
func (c *CacheConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// SessionTTLDuration returns history.session_ttl. Validate must have
// succeeded first.
func (h *HistoryConfig) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(h.SessionTTL)
	return d
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	if t := c.Server.Timeout; t != "" {
		if err := positiveDuration("server.timeout", t); err != nil {
			return err
		}
	}

	size := strings.TrimSpace(c.Server.MaxHeaderSize)
	if size == "" {
		size = defaultMaxHeaderSize
	}
	n, err := units.FromHumanSize(size)
	if err != nil {
		return fmt.Errorf("invalid server.max_header_size %q: %w", c.Server.MaxHeaderSize, err)
	}
	if n < 4096 {
		return fmt.Errorf("invalid server.max_header_size %q: must be at least 4KB", c.Server.MaxHeaderSize)
	}
	c.Server.MaxHeaderSize = size

	c.Server.CORS.MaxAge = strings.TrimSpace(c.Server.CORS.MaxAge)
	if ma := c.Server.CORS.MaxAge; ma != "" {
		if err := positiveDuration("server.cors.max_age", ma); err != nil {
			return err
		}
	}
	for i, o := range c.Server.CORS.AllowOrigins {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("server.cors.allow_origins[%d] cannot be empty", i)
		}
		c.Server.CORS.AllowOrigins[i] = strings.TrimSpace(o)
	}
	if c.Server.CORS.AllowCredentials && slices.Contains(c.Server.CORS.AllowOrigins, "*") {
		return fmt.Errorf("server.cors.allow_credentials cannot be combined with a \"*\" origin")
	}
	for i, m := range c.Server.CORS.AllowMethods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			return fmt.Errorf("server.cors.allow_methods[%d] cannot be empty", i)
		}
		c.Server.CORS.AllowMethods[i] = m
	}
	for i, h := range c.Server.CORS.AllowHeaders {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("server.cors.allow_headers[%d] cannot be empty", i)
		}
		c.Server.CORS.AllowHeaders[i] = strings.TrimSpace(h)
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	c.Cache.TTL = strings.TrimSpace(c.Cache.TTL)
	if c.Cache.TTL == "" {
		c.Cache.TTL = defaultCacheTTL
	}
	if err := positiveDuration("cache.ttl", c.Cache.TTL); err != nil {
		return err
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("invalid cache.max_size %d: must not be negative", c.Cache.MaxSize)
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = defaultCacheMaxSize
	}
	return nil
}

func (c *Config) validateRouter() error {
	base := strings.TrimSpace(c.Router.BasePath)
	if base != "" {
		if !strings.HasPrefix(base, "/") {
			return fmt.Errorf("invalid router.base_path %q: must start with '/'", c.Router.BasePath)
		}
		if strings.ContainsAny(base, "?#*: ") {
			return fmt.Errorf("invalid router.base_path %q: must be a plain path", c.Router.BasePath)
		}
		if len(base) > 1 {
			base = strings.TrimSuffix(base, "/")
		}
	}
	c.Router.BasePath = base

	home := strings.TrimSpace(c.Router.Home)
	if home == "" {
		home = defaultHome
	}
	c.Router.Home = home
	return nil
}

func (c *Config) validateHistory() error {
	h := &c.History
	if !h.Enabled {
		return nil
	}

	if h.MaxPerSession == 0 {
		h.MaxPerSession = defaultMaxPerSession
	}
	if h.MaxPerSession < 0 {
		return fmt.Errorf("invalid history.max_per_session %d: must be positive", h.MaxPerSession)
	}
	if h.RecentLimit == 0 {
		h.RecentLimit = defaultRecentLimit
	}
	if h.RecentLimit < 0 || h.RecentLimit > h.MaxPerSession {
		return fmt.Errorf("invalid history.recent_limit %d: must be between 1 and history.max_per_session (%d)", h.RecentLimit, h.MaxPerSession)
	}

	h.SessionCookie = strings.TrimSpace(h.SessionCookie)
	if h.SessionCookie == "" {
		h.SessionCookie = defaultSessionCookie
	}
	if strings.ContainsAny(h.SessionCookie, " ;=,\t") {
		return fmt.Errorf("invalid history.session_cookie %q: not a valid cookie name", h.SessionCookie)
	}

	h.SessionTTL = strings.TrimSpace(h.SessionTTL)
	if h.SessionTTL == "" {
		h.SessionTTL = defaultSessionTTL
	}
	return positiveDuration("history.session_ttl", h.SessionTTL)
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	if c.Database.Driver == "postgres" {
		pg := &c.Database.Postgres
		pg.Host = strings.TrimSpace(pg.Host)
		if pg.Host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
		}
		pg.User = strings.TrimSpace(pg.User)
		if pg.User == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		pg.DBName = strings.TrimSpace(pg.DBName)
		if pg.DBName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}

		sslMode := strings.TrimSpace(pg.SSLMode)
		switch sslMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch sslMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}
		pg.SSLMode = sslMode
	}

	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)
	if lm := c.Database.Pool.ConnMaxLifetime; lm != "" {
		if err := positiveDuration("database.pool.conn_max_lifetime", lm); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

func positiveDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", key, value)
	}
	return nil
}
