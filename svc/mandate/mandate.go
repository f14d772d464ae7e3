// Package mandate takes Direct Debit mandate instructions from a dd_setup
// payment link, keeps the bank details sealed, and moves mandates through
// their admin-driven lifecycle.
package mandate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/pkg/statemachine"
)

type Status string

const (
	StatusPending             Status = "pending"
	StatusVerified            Status = "verified"
	StatusSubmittedToProvider Status = "submitted_to_provider"
	StatusActive              Status = "active"
	StatusCancelled           Status = "cancelled"
	StatusFailed              Status = "failed"
)

// Transitions advances in order; cancelled and failed end a mandate from any
// live state.
var Transitions = statemachine.New(
	statemachine.Allow(StatusPending, StatusVerified),
	statemachine.Allow(StatusVerified, StatusSubmittedToProvider),
	statemachine.Allow(StatusSubmittedToProvider, StatusActive),
	statemachine.AllowFromAny(
		[]Status{StatusPending, StatusVerified, StatusSubmittedToProvider, StatusActive},
		StatusCancelled, StatusFailed,
	),
)

type Mandate struct {
	ID                   uuid.UUID `json:"id"`
	UserID               uuid.UUID `json:"user_id"`
	PaymentRequestID     uuid.UUID `json:"payment_request_id"`
	Status               Status    `json:"status"`
	Reference            string    `json:"mandate_reference"`
	CustomerName         string    `json:"customer_name"`
	CustomerEmail        string    `json:"customer_email"`
	AccountHolderName    string    `json:"account_holder_name"`
	SortCodeMasked       string    `json:"sort_code_masked"`
	AccountNumberMasked  string    `json:"account_number_masked"`
	EncryptedBankDetails string    `json:"-"`
	SignatureName        string    `json:"signature_name"`
	ConsentAt            time.Time `json:"consent_at"`
	ConsentIP            string    `json:"consent_ip,omitempty"`
	ConsentUserAgent     string    `json:"consent_user_agent,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// BankDetails is the sealed part of a mandate.
type BankDetails struct {
	AccountHolderName string `json:"account_holder_name"`
	SortCode          string `json:"sort_code"`
	AccountNumber     string `json:"account_number"`
}

type Store interface {
	// CreateMandate inserts m and completes its payment request in one
	// transaction. If the request is no longer sent or opened nothing is
	// written and paymentrequest.ErrWrongStatus is returned.
	CreateMandate(ctx context.Context, m *Mandate) error

	// GetMandate returns ErrNotFound for unknown mandates.
	GetMandate(ctx context.Context, id uuid.UUID) (*Mandate, error)

	// TransitionMandate sets status to to while the stored status is one of from.
	TransitionMandate(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time) (bool, error)
}
