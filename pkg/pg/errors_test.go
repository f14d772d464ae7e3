package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/linehub/billing/pkg/pg"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "invoices_user_period_key"}
	fk := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name       string
		err        error
		notFound   bool
		duplicate  bool
		foreign    bool
		constraint string
	}{
		{name: "nil", err: nil},
		{name: "no rows", err: fmt.Errorf("get invoice: %w", pgx.ErrNoRows), notFound: true},
		{name: "unique violation", err: fmt.Errorf("insert: %w", dup), duplicate: true, constraint: "invoices_user_period_key"},
		{name: "foreign key", err: fk, foreign: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.notFound, pg.IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, pg.IsDuplicateKeyError(tt.err))
			assert.Equal(t, tt.foreign, pg.IsForeignKeyViolationError(tt.err))
			assert.Equal(t, tt.constraint, pg.ConstraintName(tt.err))
		})
	}
}
