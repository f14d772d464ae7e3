package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linehub/billing/pkg/pg"
	"github.com/linehub/billing/svc/billing"
)

func (s *Store) ListDueBillingSettings(ctx context.Context, today time.Time) ([]billing.Settings, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, mode, billing_day, next_invoice_date, vat_enabled, vat_rate::text, payment_terms_days, currency
		FROM billing_settings
		WHERE next_invoice_date <= $1
		ORDER BY next_invoice_date, user_id`,
		billing.Day(today),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Settings, error) {
		var st billing.Settings
		err := row.Scan(&st.UserID, &st.Mode, &st.BillingDay, &st.NextInvoiceDate,
			&st.VATEnabled, &st.VATRate, &st.PaymentTermsDays, &st.Currency)
		return st, err
	})
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*billing.Profile, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var p billing.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, name, email, account_number FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Name, &p.Email, &p.AccountNumber)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListActiveServices(ctx context.Context, userID uuid.UUID) ([]billing.CustomerService, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, description, monthly_price::text, active
		FROM customer_services
		WHERE user_id = $1 AND active
		ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.CustomerService, error) {
		var cs billing.CustomerService
		err := row.Scan(&cs.ID, &cs.UserID, &cs.Name, &cs.Description, &cs.MonthlyPrice, &cs.Active)
		return cs, err
	})
}

func (s *Store) InvoiceExistsForPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invoices
			WHERE user_id = $1 AND billing_period_start = $2 AND billing_period_end = $3
		)`,
		userID, billing.Day(start), billing.Day(end),
	).Scan(&exists)
	return exists, err
}

func (s *Store) NextInvoiceSequence(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var n int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO invoice_sequences (key, value) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = invoice_sequences.value + 1
		RETURNING value`,
		key,
	).Scan(&n)
	return n, err
}

const insertLineItem = `
INSERT INTO invoice_line_items (id, invoice_id, position, service_id, description, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric)`

// CreateInvoice writes the invoice and its lines in one transaction. Either
// unique index on the period or the number maps to billing.ErrInvoiceExists.
func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoices (id, user_id, invoice_number, status, subtotal, vat_rate, vat_amount, total,
				currency, billing_period_start, billing_period_end, due_date, paid_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14, $15)`,
			inv.ID, inv.UserID, inv.Number, string(inv.Status),
			inv.Subtotal.String(), inv.VATRate.String(), inv.VATAmount.String(), inv.Total.String(),
			inv.Currency, billing.Day(inv.BillingPeriodStart), billing.Day(inv.BillingPeriodEnd), billing.Day(inv.DueDate),
			inv.PaidAt, inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if len(inv.Lines) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, l := range inv.Lines {
			batch.Queue(insertLineItem,
				l.ID, inv.ID, i, l.ServiceID, l.Description, l.Quantity,
				l.UnitPrice.String(), l.Amount.String(),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if pg.IsDuplicateKeyError(err) {
		return billing.ErrInvoiceExists
	}
	return err
}

func (s *Store) AdvanceNextInvoiceDate(ctx context.Context, userID uuid.UUID, from, to time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE billing_settings SET next_invoice_date = $3, updated_at = now()
		WHERE user_id = $1 AND next_invoice_date = $2`,
		userID, billing.Day(from), billing.Day(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const invoiceColumns = `id, user_id, invoice_number, status, subtotal::text, vat_rate::text,
	vat_amount::text, total::text, currency, billing_period_start, billing_period_end,
	due_date, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (billing.Invoice, error) {
	var inv billing.Invoice
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.Number, &inv.Status, &inv.Subtotal, &inv.VATRate,
		&inv.VATAmount, &inv.Total, &inv.Currency, &inv.BillingPeriodStart, &inv.BillingPeriodEnd,
		&inv.DueDate, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	return inv, err
}

// GetInvoice returns the invoice with its lines in their original order.
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	inv, err := scanInvoice(s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, service_id, description, quantity, unit_price::text, amount::text
		FROM invoice_line_items WHERE invoice_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, err
	}
	inv.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.LineItem, error) {
		var l billing.LineItem
		err := row.Scan(&l.ID, &l.InvoiceID, &l.ServiceID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount)
		return l, err
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) TransitionInvoice(ctx context.Context, id uuid.UUID, from []billing.InvoiceStatus, to billing.InvoiceStatus, at time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return transitionInvoice(ctx, s.pool, id, from, to, at)
}

func transitionInvoice(ctx context.Context, q querier, id uuid.UUID, from []billing.InvoiceStatus, to billing.InvoiceStatus, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE invoices SET
			status = $3,
			updated_at = $4,
			paid_at = CASE WHEN $3 = 'paid' THEN $4 ELSE paid_at END
		WHERE id = $1 AND status = ANY($2)`,
		id, strs(from), string(to), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnpaidInvoicesDueOn returns invoices without their lines.
func (s *Store) ListUnpaidInvoicesDueOn(ctx context.Context, due time.Time) ([]billing.Invoice, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE due_date = $1 AND status = ANY($2) ORDER BY invoice_number`,
		billing.Day(due), strs(billing.UnpaidStatuses),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Invoice, error) {
		return scanInvoice(row)
	})
}
