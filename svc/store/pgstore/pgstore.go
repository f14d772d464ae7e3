// Package pgstore implements every billing store on Postgres with pgx.
// Multi-row writes run in one transaction through pg.WithTx; conditional
// status changes are single UPDATE ... WHERE status = ANY(...) statements.
package pgstore

import (
	"context"
	"embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

// Migrations holds the goose migrations for pg.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

var (
	_ paymentrequest.Store = (*Store)(nil)
	_ billing.Store        = (*Store)(nil)
	_ checkout.Store       = (*Store)(nil)
	_ mandate.Store        = (*Store)(nil)
	_ ledger.Store         = (*Store)(nil)
	_ audit.Storage        = (*Store)(nil)
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

type Option func(*Store)

// WithQueryTimeout bounds every store call. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New wraps pool. Panics if pool is nil.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	s := &Store{pool: pool, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Ping checks the pool for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// strs converts a slice of string-backed enums for ANY($n) parameters.
func strs[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
