package pgstore

import (
	"context"
	"time"

	"github.com/linehub/billing/pkg/pg"
	"github.com/linehub/billing/svc/ledger"
)

func (s *Store) LedgerEntryExists(ctx context.Context, subject ledger.Subject, template string, since time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM communications_log
			WHERE subject_kind = $1 AND subject_id = $2 AND template_name = $3 AND created_at >= $4
		)`,
		string(subject.Kind), subject.ID, template, since,
	).Scan(&exists)
	return exists, err
}

func (s *Store) InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO communications_log (id, subject_kind, subject_id, user_id, invoice_id,
			payment_request_id, mandate_id, template_name, recipient, status,
			provider_message_id, error, metadata, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15)`,
		e.ID, string(e.Subject.Kind), e.Subject.ID, e.UserID, e.InvoiceID,
		e.PaymentRequestID, e.MandateID, e.TemplateName, e.Recipient, string(e.Status),
		e.ProviderMessageID, e.Error, metadata, e.DedupKey, e.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "communications_log_dedup_key" {
		return ledger.ErrDuplicate
	}
	return err
}
