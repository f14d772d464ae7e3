package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists billing settings and invoices and reads the customer data
// billing depends on.
type Store interface {
	// ListDueBillingSettings returns settings with next_invoice_date <= today.
	ListDueBillingSettings(ctx context.Context, today time.Time) ([]Settings, error)

	// GetProfile returns ErrProfileNotFound for unknown customers.
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// ListActiveServices returns the customer's active services.
	ListActiveServices(ctx context.Context, userID uuid.UUID) ([]CustomerService, error)

	InvoiceExistsForPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) (bool, error)

	// NextInvoiceSequence returns the next number in the key's sequence,
	// starting at 1.
	NextInvoiceSequence(ctx context.Context, key string) (int64, error)

	// CreateInvoice stores the invoice and its lines as one unit. It returns
	// ErrInvoiceExists if the period is already invoiced.
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// AdvanceNextInvoiceDate moves the date from from to to only while it
	// still equals from.
	AdvanceNextInvoiceDate(ctx context.Context, userID uuid.UUID, from, to time.Time) (bool, error)

	// GetInvoice returns ErrInvoiceNotFound for unknown invoices.
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// TransitionInvoice sets status to to while the stored status is one of
	// from.
	TransitionInvoice(ctx context.Context, id uuid.UUID, from []InvoiceStatus, to InvoiceStatus, at time.Time) (bool, error)

	// ListUnpaidInvoicesDueOn returns invoices in UnpaidStatuses due on the date.
	ListUnpaidInvoicesDueOn(ctx context.Context, due time.Time) ([]Invoice, error)
}
