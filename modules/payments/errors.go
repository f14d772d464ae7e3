package payments

import (
	"errors"
	"net/http"

	"github.com/linehub/billing/handler"
	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/pkg/statemachine"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

var (
	ErrUnknownAction = handler.NewHTTPError(http.StatusBadRequest, "unknown_action", "Unknown action.")
	ErrInvalidDate   = handler.NewHTTPError(http.StatusBadRequest, "invalid_date", "Date must be in YYYY-MM-DD format.")

	ErrTooManyRequests = handler.NewHTTPError(http.StatusTooManyRequests, "too_many_requests", "Too many attempts, please wait and try again.")
)

var (
	errLinkNotFound     = handler.NewHTTPError(http.StatusNotFound, "not_found", "This link is invalid or has expired.")
	errLinkExpired      = handler.NewHTTPError(http.StatusGone, "expired", "This link has expired.")
	errAlreadyCompleted = handler.NewHTTPError(http.StatusConflict, "already_completed", "This payment has already been completed.")
	errLinkUsed         = handler.NewHTTPError(http.StatusConflict, "wrong_status", "This link is no longer valid.")
	errProvider         = handler.NewHTTPError(http.StatusBadGateway, "provider_unavailable", "Payment provider unavailable, please try again.")
	errBadOutcome       = handler.NewHTTPError(http.StatusBadRequest, "invalid_outcome", "Invalid payment status.")
	errBadReturnURL     = handler.NewHTTPError(http.StatusBadRequest, "invalid_return_url", "Invalid return URL.")
	errMandateNotFound  = handler.NewHTTPError(http.StatusNotFound, "not_found", "Mandate not found.")
	errRevoked          = handler.NewHTTPError(http.StatusGone, "revoked", "Bank details are no longer available for this mandate.")
	errTransition       = handler.NewHTTPError(http.StatusConflict, "invalid_transition", "That status change is not allowed.")
	errWebhookSignature = handler.NewHTTPError(http.StatusUnauthorized, "invalid_signature", "Invalid signature.")
	errWebhookPayload   = handler.NewHTTPError(http.StatusBadRequest, "invalid_payload", "Invalid payload.")
	errUnpayableAmount  = handler.NewHTTPError(http.StatusUnprocessableEntity, "unsupported_amount", "This payment cannot be taken online, please contact support.")
)

// classes is checked in order; the first match wins. ErrAlreadyCompleted
// wraps ErrWrongStatus so it must come first.
var classes = []struct {
	err  error
	http handler.HTTPError
}{
	{paymentrequest.ErrExpired, errLinkExpired},
	{paymentrequest.ErrAlreadyCompleted, errAlreadyCompleted},
	{paymentrequest.ErrWrongStatus, errLinkUsed},
	{paymentrequest.ErrNotFound, errLinkNotFound},
	{checkout.ErrAttemptNotFound, errLinkNotFound},
	{checkout.ErrInvalidOutcome, errBadOutcome},
	{checkout.ErrInvalidReturnURL, errBadReturnURL},
	{checkout.ErrProviderUnavailable, errProvider},
	{checkout.ErrUnverifiedOutcome, errProvider},
	{checkout.ErrWebhookVerification, errWebhookSignature},
	{checkout.ErrInvalidWebhookPayload, errWebhookPayload},
	{mandate.ErrNotFound, errMandateNotFound},
	{mandate.ErrRevoked, errRevoked},
	{statemachine.ErrInvalidTransition, errTransition},
	{money.ErrUnknownCurrency, errUnpayableAmount},
	{money.ErrSubMinorAmount, errUnpayableAmount},
}

// Classify maps service errors to customer-safe HTTP errors.
func Classify(err error) (handler.HTTPError, bool) {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.http, true
		}
	}
	return handler.HTTPError{}, false
}
