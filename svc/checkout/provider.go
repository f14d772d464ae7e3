package checkout

import (
	"context"

	"github.com/google/uuid"
)

// SessionRequest is what a provider needs to open a hosted checkout.
type SessionRequest struct {
	PaymentRequestID     uuid.UUID
	TransactionReference string
	AmountMinor          int64
	Currency             string
	Description          string
	CustomerName         string
	CustomerEmail        string
	SuccessURL           string
	FailureURL           string
	CancelURL            string
}

// ProviderSession is the provider's answer: where to send the customer and
// how the provider names the transaction.
type ProviderSession struct {
	CheckoutURL       string
	ProviderReference string
}

// Provider opens hosted checkout sessions.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error)
}

// StatusQuerier is implemented by providers that can confirm an outcome
// server to server. When the active provider implements it, browser-reported
// successes are corroborated before settlement.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, attempt *Attempt) (Outcome, error)
}

// ProviderEvent is a verified server-to-server notification.
type ProviderEvent struct {
	ID                   string
	Type                 string
	TransactionReference string
	ProviderReference    string

	// Outcome is empty for events that do not settle a payment.
	Outcome Outcome
}
