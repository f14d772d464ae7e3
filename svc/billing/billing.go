// Package billing runs the per-customer billing cycle: it decides when each
// customer is due, turns their billable services into an invoice exactly once
// per period, and issues the payment link for it.
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/pkg/statemachine"
)

type Mode string

const (
	ModeFixedDay    Mode = "fixed_day"
	ModeAnniversary Mode = "anniversary"
)

// MaxBillingDay keeps fixed-day billing inside every month.
const MaxBillingDay = 28

// Settings is a customer's billing cycle configuration.
type Settings struct {
	UserID           uuid.UUID
	Mode             Mode
	BillingDay       int
	NextInvoiceDate  time.Time
	VATEnabled       bool
	VATRate          decimal.Decimal // percent, e.g. 20
	PaymentTermsDays int
	Currency         string
}

// Profile is the customer data billing reads; profiles are owned elsewhere.
type Profile struct {
	UserID        uuid.UUID
	Name          string
	Email         string
	AccountNumber string
}

// CustomerService is a subscribed service billed monthly.
type CustomerService struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Name         string
	Description  string
	MonthlyPrice decimal.Decimal
	Active       bool
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoiceTransitions: paid only through settlement, overdue only through
// reminders.
var InvoiceTransitions = statemachine.New(
	statemachine.Allow(InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled),
	statemachine.Allow(InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled),
	statemachine.Allow(InvoiceOverdue, InvoicePaid, InvoiceCancelled),
)

// UnpaidStatuses are the statuses reminders are sent for.
var UnpaidStatuses = []InvoiceStatus{InvoiceDraft, InvoiceSent, InvoiceOverdue}

type Invoice struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Number             string
	Status             InvoiceStatus
	Subtotal           decimal.Decimal
	VATRate            decimal.Decimal
	VATAmount          decimal.Decimal
	Total              decimal.Decimal
	Currency           string
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	DueDate            time.Time
	PaidAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Lines              []LineItem
}

type LineItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	ServiceID   *uuid.UUID
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
}
