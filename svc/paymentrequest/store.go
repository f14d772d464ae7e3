package paymentrequest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists payment requests. Lookups return ErrNotFound for unknown
// records.
type Store interface {
	CreatePaymentRequest(ctx context.Context, r *PaymentRequest) error
	GetPaymentRequest(ctx context.Context, id uuid.UUID) (*PaymentRequest, error)
	GetPaymentRequestByTokenHash(ctx context.Context, hash string) (*PaymentRequest, error)

	// TransitionPaymentRequest sets status to to only while the stored status
	// is one of from, stamping the matching timestamp with at. It reports
	// false when no row matched, which callers treat as already consumed.
	TransitionPaymentRequest(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time) (bool, error)

	// ListActivePaymentRequestsByInvoice returns sent and opened requests for
	// the invoice, expired ones included.
	ListActivePaymentRequestsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]PaymentRequest, error)
}
