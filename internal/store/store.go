// Package store provides the control store for the beacon application.
//
// The control store holds users, login sessions, apps and permission grants.
// Per-app event data lives in separate isolated stores managed by the
// appstore package. The control store uses DuckDB as the backing database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/mstefan99/beacon/internal/errors"
)

// Config holds store configuration options.
type Config struct {
	// Path is the database file path.
	Path string

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueryTimeout: 30 * time.Second,
	}
}

// Store provides control database operations.
//
// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.Mutex
	closed bool
}

// Open opens the control store and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("open control store: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.StorageUnavailable(fmt.Errorf("ping control store: %w", err))
	}

	s := &Store{db: db, config: cfg}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.StorageUnavailable(fmt.Errorf("migrate control store: %w", err))
	}

	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// defaultContext creates a context with the configured query timeout.
func (s *Store) defaultContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.QueryTimeout)
}

// Transaction executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
