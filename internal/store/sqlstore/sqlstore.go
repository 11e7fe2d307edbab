// Package sqlstore persists identities in PostgreSQL or SQLite through
// database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects SQL flavour and driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const (
	// DefaultQueryTimeout bounds every identity query.
	DefaultQueryTimeout   = 2 * time.Second
	connectTimeoutSeconds = "2"
)

// ErrUnsupportedURL is returned for DATABASE_URL schemes the store cannot open.
var ErrUnsupportedURL = errors.New("sqlstore: unsupported database url")

// Store implements auth.IdentityStore.
type Store struct {
	db           *sql.DB
	dialect      Dialect
	now          func() time.Time
	queryTimeout time.Duration
}

// Option configures Store behavior.
type Option func(*Store)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithQueryTimeout overrides DefaultQueryTimeout. Non-positive values are
// ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, now: time.Now, queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the database named by rawURL. Accepted forms are
// postgres://, postgresql://, postgresql+<driver>:// and sqlite://<path>;
// "sqlite://" alone opens a private in-memory database.
func Open(ctx context.Context, rawURL string, opts ...Option) (*Store, error) {
	dialect, dsn, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	switch dialect {
	case Postgres:
		db, err := sql.Open("pgx", withConnectTimeout(dsn))
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
		return New(db, Postgres, opts...), nil
	default:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
		}
		// One connection keeps in-memory databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("sqlstore: %s: %w", pragma, err)
			}
		}
		return New(db, SQLite, opts...), nil
	}
}

// ParseURL maps a DATABASE_URL onto a dialect and driver DSN.
func ParseURL(rawURL string) (Dialect, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	}
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: missing scheme", ErrUnsupportedURL)
	}
	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	switch base {
	case "postgres", "postgresql":
		if rest == "" {
			return "", "", fmt.Errorf("%w: missing host", ErrUnsupportedURL)
		}
		return Postgres, "postgres://" + rest, nil
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(rest, "/")
		if strings.HasPrefix(rest, "//") {
			// sqlite:////abs/path keeps its leading slash.
			path = rest[1:]
		}
		if path == "" || path == ":memory:" {
			return SQLite, ":memory:", nil
		}
		return SQLite, path, nil
	default:
		return "", "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
	}
}

// withConnectTimeout adds connect_timeout to a postgres URL unless the caller
// already set one.
func withConnectTimeout(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	if q.Get("connect_timeout") != "" {
		return dsn
	}
	q.Set("connect_timeout", connectTimeoutSeconds)
	u.RawQuery = q.Encode()
	return u.String()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the SQL flavour in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity within timeout.
func (s *Store) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// bound derives the per-query deadline.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders for drivers that expect '?'. Queries in this
// package use each placeholder once and in order.
func (s *Store) rebind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
