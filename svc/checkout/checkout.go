// Package checkout bridges payment requests to a hosted card-payment page and
// settles the outcome: request completion, attempt status, invoice payment
// and receipt are written together or not at all.
package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/svc/paymentrequest"
)

// Outcome is the result tag carried by provider return URLs and webhooks.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailed || o == OutcomeCancelled
}

// RequestStatus maps an outcome to the terminal payment request status.
func (o Outcome) RequestStatus() paymentrequest.Status {
	switch o {
	case OutcomeSuccess:
		return paymentrequest.StatusCompleted
	case OutcomeCancelled:
		return paymentrequest.StatusCancelled
	default:
		return paymentrequest.StatusFailed
	}
}

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSuccess   AttemptStatus = "success"
	AttemptFailed    AttemptStatus = "failed"
	AttemptCancelled AttemptStatus = "cancelled"
)

// Attempt is one hosted checkout session for a payment request. It is stored
// before the customer is redirected.
type Attempt struct {
	ID                   uuid.UUID     `json:"id"`
	PaymentRequestID     uuid.UUID     `json:"payment_request_id"`
	TransactionReference string        `json:"transaction_reference"`
	ProviderReference    string        `json:"provider_reference,omitempty"`
	Provider             string        `json:"provider"`
	Status               AttemptStatus `json:"status"`
	AmountMinor          int64         `json:"amount_minor"`
	Currency             string        `json:"currency"`
	CheckoutURL          string        `json:"checkout_url"`
	Corroborated         bool          `json:"corroborated"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Receipt proves a settled card payment. At most one exists per request.
type Receipt struct {
	ID                   uuid.UUID       `json:"id"`
	PaymentRequestID     uuid.UUID       `json:"payment_request_id"`
	InvoiceID            *uuid.UUID      `json:"invoice_id,omitempty"`
	UserID               uuid.UUID       `json:"user_id"`
	Reference            string          `json:"reference"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	TransactionReference string          `json:"transaction_reference"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Settlement is the set of writes applied for one outcome.
type Settlement struct {
	PaymentRequestID uuid.UUID
	AttemptID        uuid.UUID
	Outcome          Outcome
	Corroborated     bool

	// InvoiceID is marked paid on success.
	InvoiceID *uuid.UUID

	// Receipt is inserted on success.
	Receipt *Receipt

	At time.Time
}

// Store persists attempts and applies settlements.
type Store interface {
	// CreatePaymentAttempt stores a pending attempt and copies its
	// transaction reference onto the payment request.
	CreatePaymentAttempt(ctx context.Context, a *Attempt) error

	// LatestPendingPaymentAttempt returns ErrAttemptNotFound when the request
	// has no pending attempt.
	LatestPendingPaymentAttempt(ctx context.Context, requestID uuid.UUID) (*Attempt, error)

	// GetPaymentAttemptByReference returns ErrAttemptNotFound for unknown
	// references.
	GetPaymentAttemptByReference(ctx context.Context, reference string) (*Attempt, error)

	// SettlePayment applies s in one transaction. The request moves from sent
	// or opened to the outcome status; if it has already left those states
	// nothing is written and paymentrequest.ErrWrongStatus is returned.
	SettlePayment(ctx context.Context, s Settlement) error

	// GetReceiptByPaymentRequest returns ErrReceiptNotFound when the request
	// has not been paid.
	GetReceiptByPaymentRequest(ctx context.Context, requestID uuid.UUID) (*Receipt, error)
}
