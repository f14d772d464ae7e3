package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linehub/billing/pkg/pg"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

// CreateMandate consumes the dd_setup request and stores the mandate
// together.
func (s *Store) CreateMandate(ctx context.Context, m *mandate.Mandate) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		ok, err := transitionRequest(ctx, tx, m.PaymentRequestID,
			paymentrequest.ActiveStatuses, paymentrequest.StatusCompleted, m.CreatedAt)
		if err != nil {
			return err
		}
		if !ok {
			return paymentrequest.ErrWrongStatus
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO dd_mandates (id, user_id, payment_request_id, status, mandate_reference,
				customer_name, customer_email, account_holder_name, sort_code_masked, account_number_masked,
				encrypted_bank_details, signature_name, consent_at, consent_ip, consent_user_agent,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			m.ID, m.UserID, m.PaymentRequestID, string(m.Status), m.Reference,
			m.CustomerName, m.CustomerEmail, m.AccountHolderName, m.SortCodeMasked, m.AccountNumberMasked,
			m.EncryptedBankDetails, m.SignatureName, m.ConsentAt, m.ConsentIP, m.ConsentUserAgent,
			m.CreatedAt, m.UpdatedAt,
		)
		return err
	})
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "dd_mandates_payment_request_key" {
		return paymentrequest.ErrWrongStatus
	}
	return err
}

func (s *Store) GetMandate(ctx context.Context, id uuid.UUID) (*mandate.Mandate, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var m mandate.Mandate
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, payment_request_id, status, mandate_reference,
			customer_name, customer_email, account_holder_name, sort_code_masked, account_number_masked,
			encrypted_bank_details, signature_name, consent_at, consent_ip, consent_user_agent,
			created_at, updated_at
		FROM dd_mandates WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.UserID, &m.PaymentRequestID, &m.Status, &m.Reference,
		&m.CustomerName, &m.CustomerEmail, &m.AccountHolderName, &m.SortCodeMasked, &m.AccountNumberMasked,
		&m.EncryptedBankDetails, &m.SignatureName, &m.ConsentAt, &m.ConsentIP, &m.ConsentUserAgent,
		&m.CreatedAt, &m.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, mandate.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) TransitionMandate(ctx context.Context, id uuid.UUID, from []mandate.Status, to mandate.Status, at time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE dd_mandates SET status = $3, updated_at = $4 WHERE id = $1 AND status = ANY($2)`,
		id, strs(from), string(to), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
