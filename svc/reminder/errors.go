package reminder

import "errors"

var (
	ErrFailedToLoadInvoices = errors.New("failed to load invoices due for reminders")
	ErrFailedToRotateLink   = errors.New("failed to rotate payment link")
	ErrFailedToMarkOverdue  = errors.New("failed to mark invoice overdue")
)
