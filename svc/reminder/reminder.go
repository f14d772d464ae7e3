// Package reminder sends payment reminders for unpaid invoices at fixed
// milestones around their due date, at most once per invoice and milestone,
// rotating the payment link each time.
package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/paymentrequest"
)

// Milestone is a reminder sent OffsetDays after the due date; negative
// offsets are before it.
type Milestone struct {
	Template    string
	OffsetDays  int
	MarkOverdue bool
}

const (
	TemplateUpcoming = "payment_reminder_upcoming"
	TemplateDue      = "payment_reminder_due"
	TemplateOverdue  = "payment_reminder_overdue"
)

// DefaultMilestones: three days before, on the day, a week late.
var DefaultMilestones = []Milestone{
	{Template: TemplateUpcoming, OffsetDays: -3},
	{Template: TemplateDue, OffsetDays: 0},
	{Template: TemplateOverdue, OffsetDays: 7, MarkOverdue: true},
}

// TargetDueDate is the due date a milestone matches on today.
func (m Milestone) TargetDueDate(today time.Time) time.Time {
	return billing.Day(today).AddDate(0, 0, -m.OffsetDays)
}

// InvoiceStore is the part of billing storage reminders need.
type InvoiceStore interface {
	ListUnpaidInvoicesDueOn(ctx context.Context, due time.Time) ([]billing.Invoice, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*billing.Profile, error)
	TransitionInvoice(ctx context.Context, id uuid.UUID, from []billing.InvoiceStatus, to billing.InvoiceStatus, at time.Time) (bool, error)
}

// Requests rotates payment links.
type Requests interface {
	CancelActiveForInvoice(ctx context.Context, invoiceID, keep uuid.UUID) (int, error)
	Create(ctx context.Context, p paymentrequest.CreateParams) (*paymentrequest.Issued, error)
}

// History answers whether a template was already sent for a subject.
type History interface {
	Seen(ctx context.Context, subject ledger.Subject, template string) (bool, error)
}

// Notice is one reminder ready to send.
type Notice struct {
	Invoice   *billing.Invoice
	Profile   *billing.Profile
	Milestone Milestone
	Request   *paymentrequest.Issued
}

// Notifier sends a reminder and records it in the ledger whatever the
// transport outcome.
type Notifier interface {
	PaymentReminder(ctx context.Context, n Notice) (ledger.Result, error)
}
