package billing

import "errors"

var (
	ErrProfileNotFound = errors.New("customer profile not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvoiceExists is returned by Store.CreateInvoice when an invoice for
	// the same customer and period is already stored.
	ErrInvoiceExists = errors.New("invoice already exists for billing period")

	ErrFailedToLoadSettings  = errors.New("failed to load billing settings")
	ErrFailedToLoadServices  = errors.New("failed to load customer services")
	ErrFailedToCreateInvoice = errors.New("failed to create invoice")
	ErrFailedToAdvanceCycle  = errors.New("failed to advance billing cycle")
	ErrFailedToIssueRequest  = errors.New("failed to issue payment request for invoice")
	ErrFailedToUpdateInvoice = errors.New("failed to update invoice")
	ErrInvalidInvoiceStatus  = errors.New("invoice is not in a state that allows this change")
)
