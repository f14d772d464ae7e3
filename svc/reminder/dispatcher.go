package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/lock"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/paymentrequest"
)

const (
	ReasonAlreadySent     = "already_sent"
	ReasonAlreadyRecorded = "already_recorded"
	ReasonLocked          = "locked"
)

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// InvoiceResult is the outcome of one invoice at one milestone.
type InvoiceResult struct {
	InvoiceID     uuid.UUID `json:"invoice_id,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Template      string    `json:"template"`
	Outcome       Outcome   `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type Summary struct {
	Date    time.Time       `json:"date"`
	Sent    int             `json:"sent"`
	Skipped int             `json:"skipped"`
	Failed  int             `json:"failed"`
	Results []InvoiceResult `json:"results"`
}

type Dispatcher struct {
	invoices    InvoiceStore
	requests    Requests
	history     History
	notifier    Notifier
	locker      lock.Locker
	audit       *audit.Logger
	log         *slog.Logger
	milestones  []Milestone
	concurrency int
	itemTimeout time.Duration
	now         func() time.Time
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithAuditLogger(a *audit.Logger) Option {
	return func(d *Dispatcher) {
		if a != nil {
			d.audit = a
		}
	}
}

func WithLocker(l lock.Locker) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.locker = l
		}
	}
}

// WithMilestones replaces DefaultMilestones.
func WithMilestones(ms ...Milestone) Option {
	return func(d *Dispatcher) {
		if len(ms) > 0 {
			d.milestones = ms
		}
	}
}

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithItemTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.itemTimeout = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a Dispatcher. Panics if a dependency is nil.
func NewDispatcher(invoices InvoiceStore, requests Requests, history History, notifier Notifier, opts ...Option) *Dispatcher {
	if invoices == nil || requests == nil || history == nil || notifier == nil {
		panic("reminder: invoices, requests, history and notifier are required")
	}

	d := &Dispatcher{
		invoices:    invoices,
		requests:    requests,
		history:     history,
		notifier:    notifier,
		locker:      lock.NewLocal(),
		audit:       audit.Discard(),
		log:         slog.Default(),
		milestones:  DefaultMilestones,
		concurrency: billing.DefaultConcurrency,
		itemTimeout: billing.DefaultItemTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(logger.Component("reminder_dispatcher"))
	return d
}

type job struct {
	milestone Milestone
	invoice   billing.Invoice
}

// Run sends today's reminders. Per-invoice failures, and milestones whose
// invoices cannot be listed, are reported in the summary.
func (d *Dispatcher) Run(ctx context.Context, today time.Time) (*Summary, error) {
	today = billing.Day(today)
	started := time.Now()
	summary := &Summary{Date: today}

	var jobs []job
	for _, m := range d.milestones {
		invoices, err := d.invoices.ListUnpaidInvoicesDueOn(ctx, m.TargetDueDate(today))
		if err != nil {
			err = errors.Join(ErrFailedToLoadInvoices, err)
			d.log.ErrorContext(ctx, "failed to list invoices for milestone", logger.Template(m.Template), logger.Error(err))
			summary.Results = append(summary.Results, InvoiceResult{Template: m.Template, Outcome: OutcomeFailed, Error: err.Error()})
			continue
		}
		for _, inv := range invoices {
			jobs = append(jobs, job{milestone: m, invoice: inv})
		}
	}

	results := make([]InvoiceResult, len(jobs))
	var eg errgroup.Group
	eg.SetLimit(d.concurrency)
	for i, j := range jobs {
		eg.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, d.itemTimeout)
			defer cancel()
			results[i] = d.remind(itemCtx, j.milestone, j.invoice)
			return nil
		})
	}
	_ = eg.Wait()

	summary.Results = append(summary.Results, results...)
	for _, r := range summary.Results {
		switch r.Outcome {
		case OutcomeSent:
			summary.Sent++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	d.log.InfoContext(ctx, "reminder run finished",
		slog.Time("date", today),
		slog.Int("sent", summary.Sent),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		logger.Duration(time.Since(started)),
	)
	return summary, nil
}

func (d *Dispatcher) remind(ctx context.Context, m Milestone, inv billing.Invoice) InvoiceResult {
	res := InvoiceResult{InvoiceID: inv.ID, InvoiceNumber: inv.Number, Template: m.Template}
	log := d.log.With(logger.InvoiceID(inv.ID), logger.Template(m.Template))
	fail := func(err error) InvoiceResult {
		log.ErrorContext(ctx, "reminder failed", logger.Error(err))
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}

	release, ok, err := d.locker.TryLock(ctx, "reminder:invoice:"+inv.ID.String())
	if err != nil {
		return fail(err)
	}
	if !ok {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonLocked
		return res
	}
	defer release()

	seen, err := d.history.Seen(ctx, ledger.Subject{Kind: ledger.SubjectInvoice, ID: inv.ID}, m.Template)
	if err != nil {
		return fail(err)
	}
	if seen {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonAlreadySent
		return res
	}

	profile, err := d.invoices.GetProfile(ctx, inv.UserID)
	if err != nil {
		return fail(err)
	}

	if m.MarkOverdue && inv.Status != billing.InvoiceOverdue {
		ok, err := d.invoices.TransitionInvoice(ctx, inv.ID,
			billing.InvoiceTransitions.Sources(billing.InvoiceOverdue), billing.InvoiceOverdue, d.now().UTC())
		if err != nil {
			return fail(errors.Join(ErrFailedToMarkOverdue, err))
		}
		if ok {
			inv.Status = billing.InvoiceOverdue
			d.record(ctx, log, "invoice.overdue",
				audit.WithResource("invoice", inv.ID.String()),
				audit.WithUserID(inv.UserID.String()),
				audit.WithMetadata("due_date", inv.DueDate.Format(time.DateOnly)),
			)
		}
	}

	due := inv.DueDate
	issued, err := d.requests.Create(ctx, paymentrequest.CreateParams{
		Type:        paymentrequest.TypeCardPayment,
		Amount:      inv.Total,
		Currency:    inv.Currency,
		Description: "Invoice " + inv.Number,
		Customer: paymentrequest.Customer{
			UserID:        profile.UserID,
			Name:          profile.Name,
			Email:         profile.Email,
			AccountNumber: profile.AccountNumber,
		},
		InvoiceID: &inv.ID,
		DueDate:   &due,
	})
	if err != nil {
		return fail(errors.Join(ErrFailedToRotateLink, err))
	}

	sent, err := d.notifier.PaymentReminder(ctx, Notice{Invoice: &inv, Profile: profile, Milestone: m, Request: issued})
	if err != nil {
		return fail(err)
	}
	if sent.Outcome == ledger.OutcomeSkipped {
		// Earlier links stay live: the customer never saw the new one.
		res.Outcome, res.Reason = OutcomeSkipped, ReasonAlreadyRecorded
		return res
	}

	cancelled, err := d.requests.CancelActiveForInvoice(ctx, inv.ID, issued.Request.ID)
	if err != nil {
		return fail(errors.Join(ErrFailedToRotateLink, err))
	}
	log.DebugContext(ctx, "payment link rotated",
		logger.PaymentRequestID(issued.Request.ID),
		slog.Int("cancelled", cancelled),
	)

	res.Outcome = OutcomeSent
	return res
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, action string, opts ...audit.EventOption) {
	if err := d.audit.Log(ctx, action, opts...); err != nil {
		log.WarnContext(ctx, "failed to record audit event", logger.Event(action), logger.Error(err))
	}
}
