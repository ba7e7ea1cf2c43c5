package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Pool defaults for fields left at zero.
const (
	defaultMaxIdleConns    = 10
	defaultMaxOpenConns    = 100
	defaultConnMaxLifetime = time.Hour
)

// poolSettings is a PoolConfig with defaults applied and the lifetime parsed.
type poolSettings struct {
	maxIdle  int
	maxOpen  int
	lifetime time.Duration
}

// SetupDatabase opens the visit history store ("sqlite" or "postgres") and
// applies pool settings. SQL is logged in full only when logger has debug
// enabled.
func SetupDatabase(cfg *DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("database config is nil")
	}
	if logger == nil {
		return nil, errors.New("logger is nil")
	}

	pool, err := cfg.Pool.settings()
	if err != nil {
		return nil, err
	}
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	logMode := gormlogger.Warn
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(logMode)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.maxIdle)
	sqlDB.SetMaxOpenConns(pool.maxOpen)
	sqlDB.SetConnMaxLifetime(pool.lifetime)

	logger.Info("database connected",
		slog.String("driver", cfg.Driver),
		slog.Int("max_idle_conns", pool.maxIdle),
		slog.Int("max_open_conns", pool.maxOpen),
		slog.Duration("conn_max_lifetime", pool.lifetime),
	)
	return db, nil
}

// CloseDatabase closes the pool behind db. It is a no-op for nil.
func CloseDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p PoolConfig) settings() (poolSettings, error) {
	s := poolSettings{
		maxIdle:  p.MaxIdleConns,
		maxOpen:  p.MaxOpenConns,
		lifetime: defaultConnMaxLifetime,
	}
	if s.maxIdle <= 0 {
		s.maxIdle = defaultMaxIdleConns
	}
	if s.maxOpen <= 0 {
		s.maxOpen = defaultMaxOpenConns
	}

	if raw := strings.TrimSpace(p.ConnMaxLifetime); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return s, fmt.Errorf("invalid pool.conn_max_lifetime %q: %w", p.ConnMaxLifetime, err)
		}
		if d <= 0 {
			return s, fmt.Errorf("invalid pool.conn_max_lifetime %q: must be greater than 0", p.ConnMaxLifetime)
		}
		s.lifetime = d
	}
	return s, nil
}

func openDialector(cfg *DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory %q: %w", dir, err)
			}
		}
		return sqlite.Open(cfg.SQLite.Path), nil
	case "postgres":
		return postgres.Open(buildPostgresDSN(&cfg.Postgres)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// buildPostgresDSN renders cfg as a postgres:// URL with escaped credentials.
func buildPostgresDSN(cfg *PostgresConfig) string {
	if cfg == nil {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   cfg.DBName,
	}
	if cfg.User != "" || cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}
