package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"variance-backend/internal/shared/telemetry"
)

// Options describes the session store's connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	// ConnectAttempts bounds how many pings Connect tries before giving up.
	ConnectAttempts int
	RetryDelay      time.Duration
}

var ErrNoDatabaseURL = errors.New("DATABASE_URL is empty")

var openDB = sql.Open

// DefaultServerOptions suits the API process: a handful of snapshot writers
// and a tolerance for Postgres starting after the service.
func DefaultServerOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 2 * time.Minute,
		PingTimeout:     5 * time.Second,
		ConnectAttempts: 3,
		RetryDelay:      time.Second,
	}
}

// DefaultMigrateOptions uses a single connection and fails fast.
func DefaultMigrateOptions() Options {
	opts := DefaultServerOptions()
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnectAttempts = 1
	return opts
}

// OptionsFromEnv applies DB_* overrides on top of defaults. Unparseable
// values are logged and ignored.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	ints := map[string]*int{
		"DB_MAX_OPEN_CONNS":   &opts.MaxOpenConns,
		"DB_MAX_IDLE_CONNS":   &opts.MaxIdleConns,
		"DB_CONNECT_ATTEMPTS": &opts.ConnectAttempts,
	}
	for key, dst := range ints {
		if raw, ok := lookup(key); ok {
			v, err := strconv.Atoi(raw)
			if err != nil {
				telemetry.Warn("db.env_invalid", map[string]any{"key": key, "error": err})
				continue
			}
			*dst = v
		}
	}
	durations := map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME":  &opts.ConnMaxLifetime,
		"DB_CONN_MAX_IDLE_TIME": &opts.ConnMaxIdleTime,
		"DB_PING_TIMEOUT":       &opts.PingTimeout,
		"DB_RETRY_DELAY":        &opts.RetryDelay,
	}
	for key, dst := range durations {
		if raw, ok := lookup(key); ok {
			v, err := time.ParseDuration(raw)
			if err != nil {
				telemetry.Warn("db.env_invalid", map[string]any{"key": key, "error": err})
				continue
			}
			*dst = v
		}
	}
	return opts
}

// Connect opens the pool and pings it, retrying with a linear backoff up to
// opts.ConnectAttempts times. The returned *sql.DB is shared by all repos.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}
	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configurePool(db, opts)

	attempts := max(opts.ConnectAttempts, 1)
	for attempt := 1; ; attempt++ {
		err = ping(ctx, db, opts.PingTimeout)
		if err == nil {
			break
		}
		if attempt >= attempts {
			_ = db.Close()
			return nil, fmt.Errorf("ping database after %d attempt(s): %w", attempt, err)
		}
		telemetry.Warn("db.ping_retry", map[string]any{"attempt": attempt, "error": err})
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * opts.RetryDelay):
		}
	}

	stats := db.Stats()
	telemetry.Info("db.init", map[string]any{
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
	})
	return db, nil
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

func configurePool(db *sql.DB, opts Options) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func lookup(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}
