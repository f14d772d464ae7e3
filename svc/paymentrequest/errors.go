package paymentrequest

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("payment request not found")
	ErrExpired     = errors.New("payment request has expired")
	ErrWrongStatus = errors.New("payment request is not in a usable state")

	// ErrAlreadyCompleted is the WrongStatus case for completed requests.
	ErrAlreadyCompleted = fmt.Errorf("payment request already completed: %w", ErrWrongStatus)

	ErrFailedToIssueToken = errors.New("failed to issue payment request token")
	ErrFailedToCreate     = errors.New("failed to create payment request")
	ErrFailedToTransition = errors.New("failed to update payment request status")
	ErrFailedToLoad       = errors.New("failed to load payment request")
)

// StatusError maps a request that refused a transition to the caller-facing error.
func StatusError(status Status) error {
	if status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	return ErrWrongStatus
}
