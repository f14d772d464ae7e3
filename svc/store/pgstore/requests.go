package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linehub/billing/pkg/pg"
	"github.com/linehub/billing/svc/paymentrequest"
)

const requestColumns = `id, type, amount::text, currency, description,
	customer_user_id, customer_name, customer_email, customer_account_number,
	invoice_id, due_date, status, token_hash, expires_at, provider_reference,
	opened_at, completed_at, cancelled_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*paymentrequest.PaymentRequest, error) {
	var r paymentrequest.PaymentRequest
	err := row.Scan(
		&r.ID, &r.Type, &r.Amount, &r.Currency, &r.Description,
		&r.Customer.UserID, &r.Customer.Name, &r.Customer.Email, &r.Customer.AccountNumber,
		&r.InvoiceID, &r.DueDate, &r.Status, &r.TokenHash, &r.ExpiresAt, &r.ProviderReference,
		&r.OpenedAt, &r.CompletedAt, &r.CancelledAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreatePaymentRequest(ctx context.Context, r *paymentrequest.PaymentRequest) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_requests (id, type, amount, currency, description,
			customer_user_id, customer_name, customer_email, customer_account_number,
			invoice_id, due_date, status, token_hash, expires_at, provider_reference,
			created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.ID, string(r.Type), r.Amount.String(), r.Currency, r.Description,
		r.Customer.UserID, r.Customer.Name, r.Customer.Email, r.Customer.AccountNumber,
		r.InvoiceID, r.DueDate, string(r.Status), r.TokenHash, r.ExpiresAt, r.ProviderReference,
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) GetPaymentRequest(ctx context.Context, id uuid.UUID) (*paymentrequest.PaymentRequest, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	r, err := scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, paymentrequest.ErrNotFound
	}
	return r, err
}

func (s *Store) GetPaymentRequestByTokenHash(ctx context.Context, hash string) (*paymentrequest.PaymentRequest, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	r, err := scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE token_hash = $1`, hash))
	if pg.IsNotFoundError(err) {
		return nil, paymentrequest.ErrNotFound
	}
	return r, err
}

func (s *Store) TransitionPaymentRequest(ctx context.Context, id uuid.UUID, from []paymentrequest.Status, to paymentrequest.Status, at time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return transitionRequest(ctx, s.pool, id, from, to, at)
}

// transitionRequest stamps the timestamp column matching to.
func transitionRequest(ctx context.Context, q querier, id uuid.UUID, from []paymentrequest.Status, to paymentrequest.Status, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payment_requests SET
			status = $3,
			updated_at = $4,
			opened_at = CASE WHEN $3 = 'opened' THEN $4 ELSE opened_at END,
			completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END
		WHERE id = $1 AND status = ANY($2)`,
		id, strs(from), string(to), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListActivePaymentRequestsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]paymentrequest.PaymentRequest, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+requestColumns+` FROM payment_requests
		WHERE invoice_id = $1 AND status = ANY($2) ORDER BY created_at`,
		invoiceID, strs(paymentrequest.ActiveStatuses),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (paymentrequest.PaymentRequest, error) {
		r, err := scanRequest(row)
		if err != nil {
			return paymentrequest.PaymentRequest{}, err
		}
		return *r, nil
	})
}
