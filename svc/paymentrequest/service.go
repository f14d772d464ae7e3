package paymentrequest

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/pkg/validator"
)

// LinkNotifier delivers a freshly issued link to the customer.
type LinkNotifier interface {
	PaymentLink(ctx context.Context, issued *Issued) error
}

// Service issues and validates payment request links.
type Service struct {
	store    Store
	audit    *audit.Logger
	notifier LinkNotifier
	log      *slog.Logger
	ttl      time.Duration
	baseURL  string
	now      func() time.Time
}

// NewService creates a Service. Panics if store is nil.
func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		panic("paymentrequest: store is required")
	}

	s := &Service{
		store: store,
		audit: audit.Discard(),
		log:   slog.Default(),
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("paymentrequest"))
	return s
}

// CreateParams describes a new obligation.
type CreateParams struct {
	Type        Type
	Amount      decimal.Decimal
	Currency    string
	Description string
	Customer    Customer
	InvoiceID   *uuid.UUID
	DueDate     *time.Time

	// TTL overrides the service default when positive.
	TTL time.Duration
}

// Validate checks the params. Direct Debit setup carries no charge, so only
// card payments need a positive amount.
func (p CreateParams) Validate() error {
	rules := []validator.Rule{
		validator.InList("type", p.Type, TypeCardPayment, TypeDDSetup),
		validator.MaxDecimalPlaces("amount", p.Amount, 2),
		validator.ValidCurrencyCode("currency", p.Currency),
		validator.RequiredString("customer.name", p.Customer.Name),
		validator.ValidEmail("customer.email", p.Customer.Email),
	}
	if p.Type == TypeCardPayment {
		rules = append(rules, validator.PositiveDecimal("amount", p.Amount))
	}
	return validator.Apply(rules...)
}

// Create stores a new sent request and returns it with its raw token.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Issued, error) {
	if p.Currency == "" {
		p.Currency = money.DefaultCurrency
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	raw, hash, err := IssueToken()
	if err != nil {
		return nil, errors.Join(ErrFailedToIssueToken, err)
	}

	ttl := s.ttl
	if p.TTL > 0 {
		ttl = p.TTL
	}

	now := s.now().UTC()
	r := &PaymentRequest{
		ID:          uuid.New(),
		Type:        p.Type,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: p.Description,
		Customer:    p.Customer,
		InvoiceID:   p.InvoiceID,
		DueDate:     p.DueDate,
		Status:      StatusSent,
		TokenHash:   hash,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreatePaymentRequest(ctx, r); err != nil {
		return nil, errors.Join(ErrFailedToCreate, err)
	}

	s.log.InfoContext(ctx, "payment request created",
		logger.PaymentRequestID(r.ID),
		logger.InvoiceID(r.InvoiceID),
		logger.UserID(r.Customer.UserID),
		slog.String("type", string(r.Type)),
	)

	return &Issued{Request: r, Token: raw, Link: s.Link(r.Type, raw)}, nil
}

// Request creates a request and delivers its link through the configured
// notifier. A delivery failure is logged; the request stays valid and can be
// resent.
func (s *Service) Request(ctx context.Context, p CreateParams) (*Issued, error) {
	issued, err := s.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return issued, nil
	}
	if err := s.notifier.PaymentLink(ctx, issued); err != nil {
		s.log.WarnContext(ctx, "payment link not delivered",
			logger.PaymentRequestID(issued.Request.ID),
			logger.Error(err),
		)
	}
	return issued, nil
}

// Validate resolves a raw token to its request. The first successful call
// moves a sent request to opened; later calls on an opened request are
// plain reads. A type mismatch, including an empty typ, is reported as
// ErrNotFound.
func (s *Service) Validate(ctx context.Context, raw string, typ Type) (*PaymentRequest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotFound
	}

	r, err := s.store.GetPaymentRequestByTokenHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	if r.Type != typ {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	if r.IsExpired(now) {
		return nil, ErrExpired
	}
	if !r.IsActive() {
		return nil, StatusError(r.Status)
	}

	firstOpen := false
	if r.Status == StatusSent {
		ok, err := s.store.TransitionPaymentRequest(ctx, r.ID, []Status{StatusSent}, StatusOpened, now)
		if err != nil {
			return nil, errors.Join(ErrFailedToTransition, err)
		}
		if ok {
			firstOpen = true
			r.Status = StatusOpened
			r.OpenedAt = &now
			r.UpdatedAt = now
		} else {
			// Lost a race with another open or a terminal transition.
			if r, err = s.Get(ctx, r.ID); err != nil {
				return nil, err
			}
			if !r.IsActive() {
				return nil, StatusError(r.Status)
			}
		}
	}

	if err := s.audit.Log(ctx, "payment_request.opened",
		audit.WithResource("payment_request", r.ID.String()),
		audit.WithUserID(r.Customer.UserID.String()),
		audit.WithMetadata("type", string(r.Type)),
		audit.WithMetadata("first_open", firstOpen),
	); err != nil {
		s.log.WarnContext(ctx, "failed to record audit event", logger.PaymentRequestID(r.ID), logger.Error(err))
	}

	return r, nil
}

// Get loads a request by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	r, err := s.store.GetPaymentRequest(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return r, nil
}

// Transition applies to from any status the transition table allows. A
// request that has already moved on yields ErrAlreadyCompleted or
// ErrWrongStatus.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) error {
	from := Transitions.Sources(to)
	if len(from) == 0 {
		return ErrWrongStatus
	}

	ok, err := s.store.TransitionPaymentRequest(ctx, id, from, to, s.now().UTC())
	if err != nil {
		return errors.Join(ErrFailedToTransition, err)
	}
	if ok {
		return nil
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return StatusError(r.Status)
}

// CancelActiveForInvoice cancels every live request for the invoice except
// keep, usually the link just issued. It returns how many were cancelled.
func (s *Service) CancelActiveForInvoice(ctx context.Context, invoiceID, keep uuid.UUID) (int, error) {
	active, err := s.store.ListActivePaymentRequestsByInvoice(ctx, invoiceID)
	if err != nil {
		return 0, errors.Join(ErrFailedToLoad, err)
	}

	now := s.now().UTC()
	cancelled := 0
	for _, r := range active {
		if r.ID == keep {
			continue
		}
		ok, err := s.store.TransitionPaymentRequest(ctx, r.ID, ActiveStatuses, StatusCancelled, now)
		if err != nil {
			return cancelled, errors.Join(ErrFailedToTransition, err)
		}
		if !ok {
			continue
		}
		cancelled++

		if err := s.audit.Log(ctx, "payment_request.cancelled",
			audit.WithResource("payment_request", r.ID.String()),
			audit.WithUserID(r.Customer.UserID.String()),
			audit.WithMetadata("reason", "superseded"),
			audit.WithMetadata("invoice_id", invoiceID.String()),
		); err != nil {
			s.log.WarnContext(ctx, "failed to record audit event", logger.PaymentRequestID(r.ID), logger.Error(err))
		}
	}
	return cancelled, nil
}

// Link builds the customer-facing URL for a raw token.
func (s *Service) Link(typ Type, raw string) string {
	path := "/pay"
	if typ == TypeDDSetup {
		path = "/dd/setup"
	}
	return s.baseURL + path + "?token=" + url.QueryEscape(raw)
}
