package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	// DefaultLimit applies to latest queries called with a non-positive limit.
	DefaultLimit = 10

	defaultTimeout = 5 * time.Second
)

// Store wraps the database connection and owns the telemetry_samples table.
// Every exported operation is bounded by a timeout and reports errors as *Failure.
type Store struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
	now     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithTimeout sets the timeout applied to calls whose context has no deadline.
// A non-positive value disables the store-enforced timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithClock overrides the wall clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open initializes the database connection for driver ("sqlite" or "postgres").
// For sqlite the dsn is a file path and parent directories are created as needed.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	s := &Store{dialect: d, timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	switch d.name {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	d.configurePool(db)

	s.db = db
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the samples table and its indexes exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return fail("init schema", ErrNotInitialized)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return failCtx(ctx, "init schema", err)
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return fail("ping", ErrNotInitialized)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return failCtx(ctx, "ping", err)
	}
	return nil
}

// Driver reports the backend in use.
func (s *Store) Driver() string {
	return s.dialect.name
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// createdAt is truncated to microseconds, the finest precision both backends keep.
func (s *Store) createdAt() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
