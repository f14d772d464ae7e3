package pgstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linehub/billing/pkg/pg"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/paymentrequest"
)

const attemptColumns = `id, payment_request_id, transaction_reference, provider_reference, provider,
	status, amount_minor, currency, checkout_url, corroborated, created_at, updated_at`

func scanAttempt(row pgx.Row) (*checkout.Attempt, error) {
	var a checkout.Attempt
	err := row.Scan(&a.ID, &a.PaymentRequestID, &a.TransactionReference, &a.ProviderReference, &a.Provider,
		&a.Status, &a.AmountMinor, &a.Currency, &a.CheckoutURL, &a.Corroborated, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreatePaymentAttempt(ctx context.Context, a *checkout.Attempt) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_attempts (`+attemptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			a.ID, a.PaymentRequestID, a.TransactionReference, a.ProviderReference, a.Provider,
			string(a.Status), a.AmountMinor, a.Currency, a.CheckoutURL, a.Corroborated, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE payment_requests SET provider_reference = $2, updated_at = $3 WHERE id = $1`,
			a.PaymentRequestID, a.TransactionReference, a.CreatedAt,
		)
		return err
	})
}

func (s *Store) LatestPendingPaymentAttempt(ctx context.Context, requestID uuid.UUID) (*checkout.Attempt, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	a, err := scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE payment_request_id = $1 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, requestID))
	if pg.IsNotFoundError(err) {
		return nil, checkout.ErrAttemptNotFound
	}
	return a, err
}

func (s *Store) GetPaymentAttemptByReference(ctx context.Context, reference string) (*checkout.Attempt, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	a, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE transaction_reference = $1`, reference))
	if pg.IsNotFoundError(err) {
		return nil, checkout.ErrAttemptNotFound
	}
	return a, err
}

// SettlePayment completes the request first; losing that race aborts the
// transaction before anything else is written. A second receipt for the same
// request trips the unique index and is reported the same way.
func (s *Store) SettlePayment(ctx context.Context, st checkout.Settlement) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		ok, err := transitionRequest(ctx, tx, st.PaymentRequestID,
			paymentrequest.ActiveStatuses, st.Outcome.RequestStatus(), st.At)
		if err != nil {
			return err
		}
		if !ok {
			return paymentrequest.ErrWrongStatus
		}

		if _, err := tx.Exec(ctx,
			`UPDATE payment_attempts SET status = $2, corroborated = $3, updated_at = $4 WHERE id = $1`,
			st.AttemptID, string(st.Outcome), st.Corroborated, st.At,
		); err != nil {
			return err
		}

		if st.Outcome == checkout.OutcomeSuccess && st.InvoiceID != nil {
			if _, err := transitionInvoice(ctx, tx, *st.InvoiceID,
				billing.UnpaidStatuses, billing.InvoicePaid, st.At); err != nil {
				return err
			}
		}

		if rc := st.Receipt; rc != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO receipts (id, payment_request_id, invoice_id, user_id, receipt_reference,
					amount, currency, transaction_reference, created_at)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`,
				rc.ID, rc.PaymentRequestID, rc.InvoiceID, rc.UserID, rc.Reference,
				rc.Amount.String(), rc.Currency, rc.TransactionReference, rc.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "receipts_payment_request_key" {
		return paymentrequest.ErrWrongStatus
	}
	return err
}

func (s *Store) GetReceiptByPaymentRequest(ctx context.Context, requestID uuid.UUID) (*checkout.Receipt, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var rc checkout.Receipt
	err := s.pool.QueryRow(ctx, `
		SELECT id, payment_request_id, invoice_id, user_id, receipt_reference, amount::text,
			currency, transaction_reference, created_at
		FROM receipts WHERE payment_request_id = $1`,
		requestID,
	).Scan(&rc.ID, &rc.PaymentRequestID, &rc.InvoiceID, &rc.UserID, &rc.Reference, &rc.Amount,
		&rc.Currency, &rc.TransactionReference, &rc.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, checkout.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}
