package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/lock"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/svc/paymentrequest"
)

// RequestIssuer creates the payment request that pays an invoice.
type RequestIssuer interface {
	Create(ctx context.Context, p paymentrequest.CreateParams) (*paymentrequest.Issued, error)
}

// Document is everything a renderer needs for one invoice.
type Document struct {
	Invoice *Invoice
	Profile *Profile
	PayLink string
}

// Renderer produces the invoice file attached to the email.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// Archiver stores a copy of a rendered invoice and returns its key.
type Archiver interface {
	Archive(ctx context.Context, inv *Invoice, pdf []byte) (string, error)
}

// Notice is an invoice ready to be sent to the customer.
type Notice struct {
	Invoice *Invoice
	Profile *Profile
	Request *paymentrequest.Issued
	PDF     []byte
}

// Notifier emails a newly issued invoice.
type Notifier interface {
	InvoiceIssued(ctx context.Context, n Notice) error
}

// Skip reasons recorded in audit events and run summaries.
const (
	ReasonNoBillableServices = "no_billable_services"
	ReasonAlreadyExists      = "already_exists"
	ReasonLocked             = "locked"
)

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// CustomerResult is the outcome of one customer in a run.
type CustomerResult struct {
	UserID          uuid.UUID  `json:"user_id"`
	Outcome         Outcome    `json:"outcome"`
	Reason          string     `json:"reason,omitempty"`
	InvoiceID       *uuid.UUID `json:"invoice_id,omitempty"`
	InvoiceNumber   string     `json:"invoice_number,omitempty"`
	NextInvoiceDate *time.Time `json:"next_invoice_date,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// RunSummary aggregates a generator run.
type RunSummary struct {
	Date    time.Time        `json:"date"`
	Created int              `json:"created"`
	Skipped int              `json:"skipped"`
	Failed  int              `json:"failed"`
	Results []CustomerResult `json:"results"`
}

// Generator creates one invoice per due customer per billing period.
type Generator struct {
	store       Store
	requests    RequestIssuer
	notifier    Notifier
	renderer    Renderer
	archiver    Archiver
	audit       *audit.Logger
	locker      lock.Locker
	log         *slog.Logger
	concurrency int
	itemTimeout time.Duration
	now         func() time.Time
}

// NewGenerator creates a Generator. Panics if store or requests is nil.
func NewGenerator(store Store, requests RequestIssuer, opts ...GeneratorOption) *Generator {
	if store == nil {
		panic("billing: store is required")
	}
	if requests == nil {
		panic("billing: request issuer is required")
	}

	g := &Generator{
		store:       store,
		requests:    requests,
		audit:       audit.Discard(),
		locker:      lock.NewLocal(),
		log:         slog.Default(),
		concurrency: DefaultConcurrency,
		itemTimeout: DefaultItemTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logger.Component("invoice_generator"))
	return g
}

// Run bills every customer whose next invoice date is on or before today.
// Customer failures are reported in the summary and never abort the run; an
// error is returned only when the due list cannot be loaded.
func (g *Generator) Run(ctx context.Context, today time.Time) (*RunSummary, error) {
	today = Day(today)
	started := time.Now()

	due, err := g.store.ListDueBillingSettings(ctx, today)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSettings, err)
	}

	results := make([]CustomerResult, len(due))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, s := range due {
		eg.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, g.itemTimeout)
			defer cancel()
			results[i] = g.bill(itemCtx, s)
			return nil
		})
	}
	_ = eg.Wait()

	summary := &RunSummary{Date: today, Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeCreated:
			summary.Created++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	g.log.InfoContext(ctx, "invoice generation finished",
		slog.Time("date", today),
		slog.Int("due", len(due)),
		slog.Int("created", summary.Created),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		logger.Duration(time.Since(started)),
	)
	return summary, nil
}

func (g *Generator) bill(ctx context.Context, s Settings) CustomerResult {
	res := CustomerResult{UserID: s.UserID}
	log := g.log.With(logger.UserID(s.UserID))

	release, ok, err := g.locker.TryLock(ctx, "billing:customer:"+s.UserID.String())
	if err != nil {
		return g.fail(ctx, log, res, err)
	}
	if !ok {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonLocked
		return res
	}
	defer release()

	profile, err := g.store.GetProfile(ctx, s.UserID)
	if err != nil {
		return g.fail(ctx, log, res, err)
	}

	services, err := g.store.ListActiveServices(ctx, s.UserID)
	if err != nil {
		return g.fail(ctx, log, res, errors.Join(ErrFailedToLoadServices, err))
	}
	var billable []CustomerService
	for _, svc := range services {
		if svc.Active && svc.MonthlyPrice.IsPositive() {
			billable = append(billable, svc)
		}
	}

	start := Day(s.NextInvoiceDate)
	end := PeriodEnd(start)

	if len(billable) == 0 {
		return g.skip(ctx, log, s, res, ReasonNoBillableServices, start, end)
	}

	exists, err := g.store.InvoiceExistsForPeriod(ctx, s.UserID, start, end)
	if err != nil {
		return g.fail(ctx, log, res, err)
	}
	if exists {
		return g.skip(ctx, log, s, res, ReasonAlreadyExists, start, end)
	}

	inv, err := g.createInvoice(ctx, s, billable, start, end)
	if errors.Is(err, ErrInvoiceExists) {
		return g.skip(ctx, log, s, res, ReasonAlreadyExists, start, end)
	}
	if err != nil {
		return g.fail(ctx, log, res, errors.Join(ErrFailedToCreateInvoice, err))
	}
	res.Outcome = OutcomeCreated
	res.InvoiceID = &inv.ID
	res.InvoiceNumber = inv.Number

	due := inv.DueDate
	issued, issueErr := g.requests.Create(ctx, paymentrequest.CreateParams{
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

	g.record(ctx, log, "invoice.created",
		audit.WithResource("invoice", inv.ID.String()),
		audit.WithUserID(s.UserID.String()),
		audit.WithMetadata("invoice_number", inv.Number),
		audit.WithMetadata("total", inv.Total.StringFixed(2)),
		audit.WithMetadata("period_start", start.Format(time.DateOnly)),
		audit.WithMetadata("period_end", end.Format(time.DateOnly)),
	)

	if issueErr != nil {
		// The invoice stands; the reminder run issues a fresh link for it.
		res.Outcome = OutcomeFailed
		res.Error = errors.Join(ErrFailedToIssueRequest, issueErr).Error()
		log.ErrorContext(ctx, "failed to issue payment request for invoice",
			logger.InvoiceID(inv.ID),
			logger.Error(issueErr),
		)
	} else {
		g.deliver(ctx, log, inv, profile, issued)
	}

	if err := g.advance(ctx, log, s, &res); err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
	}
	return res
}

func (g *Generator) createInvoice(ctx context.Context, s Settings, services []CustomerService, start, end time.Time) (*Invoice, error) {
	now := g.now().UTC()

	seq, err := g.store.NextInvoiceSequence(ctx, SequenceKey(now))
	if err != nil {
		return nil, err
	}

	currency := s.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}

	inv := &Invoice{
		ID:                 uuid.New(),
		UserID:             s.UserID,
		Number:             FormatInvoiceNumber(now, seq),
		Status:             InvoiceDraft,
		Currency:           currency,
		BillingPeriodStart: start,
		BillingPeriodEnd:   end,
		DueDate:            DueDate(start, s.PaymentTermsDays),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	prices := make([]decimal.Decimal, 0, len(services))
	for _, svc := range services {
		serviceID := svc.ID
		inv.Lines = append(inv.Lines, LineItem{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			ServiceID:   &serviceID,
			Description: svc.Name,
			Quantity:    1,
			UnitPrice:   svc.MonthlyPrice,
			Amount:      svc.MonthlyPrice,
		})
		prices = append(prices, svc.MonthlyPrice)
	}

	inv.Subtotal, inv.VATAmount, inv.Total = Totals(prices, s.VATEnabled, s.VATRate)
	if s.VATEnabled {
		inv.VATRate = s.VATRate
	}

	if err := g.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// deliver renders, archives and emails the invoice. Nothing here can undo
// the invoice; failures are logged and the invoice stays a draft.
func (g *Generator) deliver(ctx context.Context, log *slog.Logger, inv *Invoice, profile *Profile, issued *paymentrequest.Issued) {
	var pdf []byte
	if g.renderer != nil {
		var err error
		pdf, err = g.renderer.Render(ctx, Document{Invoice: inv, Profile: profile, PayLink: issued.Link})
		if err != nil {
			log.WarnContext(ctx, "failed to render invoice", logger.InvoiceID(inv.ID), logger.Error(err))
			pdf = nil
		}
	}

	if g.archiver != nil && len(pdf) > 0 {
		key, err := g.archiver.Archive(ctx, inv, pdf)
		if err != nil {
			log.WarnContext(ctx, "failed to archive invoice", logger.InvoiceID(inv.ID), logger.Error(err))
		} else {
			log.DebugContext(ctx, "invoice archived", logger.InvoiceID(inv.ID), slog.String("key", key))
		}
	}

	if g.notifier == nil {
		return
	}
	if err := g.notifier.InvoiceIssued(ctx, Notice{Invoice: inv, Profile: profile, Request: issued, PDF: pdf}); err != nil {
		log.WarnContext(ctx, "failed to email invoice", logger.InvoiceID(inv.ID), logger.Error(err))
		return
	}

	ok, err := g.store.TransitionInvoice(ctx, inv.ID, []InvoiceStatus{InvoiceDraft}, InvoiceSent, g.now().UTC())
	if err != nil {
		log.WarnContext(ctx, "failed to mark invoice sent", logger.InvoiceID(inv.ID), logger.Error(err))
		return
	}
	if ok {
		inv.Status = InvoiceSent
	}
}

func (g *Generator) skip(ctx context.Context, log *slog.Logger, s Settings, res CustomerResult, reason string, start, end time.Time) CustomerResult {
	res.Outcome = OutcomeSkipped
	res.Reason = reason

	g.record(ctx, log, "invoice.skipped",
		audit.WithResource("billing_settings", s.UserID.String()),
		audit.WithUserID(s.UserID.String()),
		audit.WithResult(audit.ResultFailure),
		audit.WithMetadata("reason", reason),
		audit.WithMetadata("period_start", start.Format(time.DateOnly)),
		audit.WithMetadata("period_end", end.Format(time.DateOnly)),
	)
	log.InfoContext(ctx, "invoice skipped", slog.String("reason", reason))

	if err := g.advance(ctx, log, s, &res); err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
	}
	return res
}

func (g *Generator) fail(ctx context.Context, log *slog.Logger, res CustomerResult, err error) CustomerResult {
	log.ErrorContext(ctx, "customer billing failed", logger.Error(err))
	res.Outcome = OutcomeFailed
	res.Error = err.Error()
	return res
}

func (g *Generator) advance(ctx context.Context, log *slog.Logger, s Settings, res *CustomerResult) error {
	next := NextInvoiceDate(s)
	ok, err := g.store.AdvanceNextInvoiceDate(ctx, s.UserID, Day(s.NextInvoiceDate), next)
	if err != nil {
		log.ErrorContext(ctx, "failed to advance billing cycle", logger.Error(err))
		return errors.Join(ErrFailedToAdvanceCycle, err)
	}
	if !ok {
		log.WarnContext(ctx, "billing cycle already advanced", slog.Time("expected", s.NextInvoiceDate))
		return nil
	}
	res.NextInvoiceDate = &next
	return nil
}

func (g *Generator) record(ctx context.Context, log *slog.Logger, action string, opts ...audit.EventOption) {
	if err := g.audit.Log(ctx, action, opts...); err != nil {
		log.WarnContext(ctx, "failed to record audit event", logger.Event(action), logger.Error(err))
	}
}
