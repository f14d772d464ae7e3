package checkout

import "errors"

var (
	ErrAttemptNotFound  = errors.New("payment attempt not found")
	ErrReceiptNotFound  = errors.New("receipt not found")
	ErrInvalidOutcome   = errors.New("invalid payment outcome")
	ErrInvalidReturnURL = errors.New("invalid return URL")

	// ErrProviderUnavailable wraps any failure talking to the payment
	// provider. Callers may retry.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrUnverifiedOutcome means the provider did not confirm a success
	// reported by the browser redirect.
	ErrUnverifiedOutcome = errors.New("payment outcome could not be verified with the provider")

	ErrFailedToSettle        = errors.New("failed to settle payment")
	ErrFailedToRecordAttempt = errors.New("failed to record payment attempt")
	ErrWebhookVerification   = errors.New("webhook signature verification failed")
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")
	ErrMissingCredentials    = errors.New("payment provider credentials are required")
	ErrNoCheckoutURL         = errors.New("no checkout URL returned from provider")
)
