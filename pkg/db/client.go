package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqliteMemoryDSN = "file::memory:?cache=shared"

// State is the lifecycle of a store handle.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotReady = errors.New("store handle not ready")
	ErrClosed   = errors.New("store handle closed")
)

// Client wraps the shared GORM connection. It is built once per process and
// handed to its users explicitly; long-lived users pair Acquire with Release
// so the pool is only closed after the last of them lets go.
type Client struct {
	conn *gorm.DB

	mu       sync.Mutex
	state    State
	refs     int
	closeErr error
	closed   bool
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New boots a GORM client using the provided configuration.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}

	applyPoolSettings(sqlDB, cfg)

	if logg != nil {
		logg.Info(ctx, "database connection established")
	}

	return FromGorm(conn), nil
}

// FromGorm wraps an already opened connection in a ready handle.
func FromGorm(conn *gorm.DB) *Client {
	c := &Client{conn: conn}
	if conn != nil {
		c.state = StateReady
	}
	return c
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	if cfg.UseSQLite || cfg.Driver == "sqlite" {
		dsn := cfg.DSN
		if dsn == "" {
			dsn = sqliteMemoryDSN
		}
		return sqlite.Open(dsn), nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	return postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), nil
}

func applyPoolSettings(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquire registers a long-lived user of the handle.
func (c *Client) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateReady:
		c.refs++
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// Release drops a reference taken with Acquire. When the handle was closed
// while references were outstanding, the last Release closes the pool.
func (c *Client) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return fmt.Errorf("release without matching acquire")
	}
	c.refs--
	if c.state == StateClosed && c.refs == 0 {
		return c.closePoolLocked()
	}
	return nil
}

// Refs returns the number of outstanding acquisitions.
func (c *Client) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if st := c.State(); st != StateReady {
		return fmt.Errorf("ping: %w", stateErr(st))
	}
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close refuses new acquisitions and shuts down the pooled connections once
// every outstanding reference has been released. Calling it again is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return c.closeErr
	}
	c.state = StateClosed
	if c.refs > 0 {
		return nil
	}
	return c.closePoolLocked()
}

func (c *Client) closePoolLocked() error {
	if c.closed || c.conn == nil {
		return c.closeErr
	}
	c.closed = true
	sqlDB, err := c.conn.DB()
	if err != nil {
		c.closeErr = err
		return err
	}
	c.closeErr = sqlDB.Close()
	return c.closeErr
}

// Exec wraps GORM's Exec with context propagation.
func (c *Client) Exec(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Exec(query, args...)
}

// Raw wraps GORM's Raw with context propagation.
func (c *Client) Raw(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Raw(query, args...)
}

// WithTx executes fn inside a transaction, rolling back on error/panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if st := c.State(); st != StateReady {
		return fmt.Errorf("begin tx: %w", stateErr(st))
	}

	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func stateErr(st State) error {
	if st == StateClosed {
		return ErrClosed
	}
	return ErrNotReady
}
