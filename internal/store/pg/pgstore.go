// Package pg persists authorization state in PostgreSQL. Set-valued
// fields (permissions, regions, members) are stored as jsonb; the
// engine only ever needs whole-record reads and single-operation
// writes, so there is no row-per-member normalization.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"opticonnect.org/internal/authz"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements authz.Store over a PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

var _ authz.Store = (*Store)(nil)

// Open connects with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Profiles() authz.ProfileStore { return (*profileStore)(s) }
func (s *Store) Groups() authz.GroupStore     { return (*groupStore)(s) }
func (s *Store) Grants() authz.GrantStore     { return (*grantStore)(s) }
func (s *Store) Requests() authz.RequestStore { return (*requestStore)(s) }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
