package ledger

import "errors"

var (
	// ErrDuplicate is returned by Store.InsertLedgerEntry when the dedup key is taken.
	ErrDuplicate = errors.New("communication already recorded")

	ErrDeliveryFailed  = errors.New("failed to deliver communication")
	ErrFailedToRecord  = errors.New("failed to record communication")
	ErrFailedToCheck   = errors.New("failed to check communication history")
	ErrInvalidDispatch = errors.New("invalid communication dispatch")
)
