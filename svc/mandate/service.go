package mandate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/reference"
	"github.com/linehub/billing/pkg/secrets"
	"github.com/linehub/billing/svc/paymentrequest"
)

// Requests is the part of the payment request service intake uses.
type Requests interface {
	Validate(ctx context.Context, raw string, typ paymentrequest.Type) (*paymentrequest.PaymentRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*paymentrequest.PaymentRequest, error)
}

// Notifier tells the customer about their mandate.
type Notifier interface {
	MandateReceived(ctx context.Context, m *Mandate) error
	MandateStatusChanged(ctx context.Context, m *Mandate, from Status) error
}

type Service struct {
	store    Store
	requests Requests
	box      *secrets.Box
	notifier Notifier
	audit    *audit.Logger
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithAuditLogger(a *audit.Logger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. box seals bank details; each mandate is
// sealed under its own ID. Panics if a dependency is nil.
func NewService(store Store, requests Requests, box *secrets.Box, opts ...Option) *Service {
	if store == nil {
		panic("mandate: store is required")
	}
	if requests == nil {
		panic("mandate: payment request service is required")
	}
	if box == nil {
		panic("mandate: secrets box is required")
	}

	s := &Service{
		store:    store,
		requests: requests,
		box:      box,
		audit:    audit.Discard(),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("mandate"))
	return s
}

// Submit validates the form, then the token, and creates a pending mandate
// while completing the dd_setup request. Invalid input is rejected before
// anything is written, including the link's first open.
func (s *Service) Submit(ctx context.Context, rawToken string, d Data, c Consent) (*Mandate, error) {
	d.AccountHolderName = strings.TrimSpace(d.AccountHolderName)
	d.SignatureName = strings.TrimSpace(d.SignatureName)
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r, err := s.requests.Validate(ctx, rawToken, paymentrequest.TypeDDSetup)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := &Mandate{
		ID:                  uuid.New(),
		UserID:              r.Customer.UserID,
		PaymentRequestID:    r.ID,
		Status:              StatusPending,
		Reference:           reference.New("DD", now),
		CustomerName:        r.Customer.Name,
		CustomerEmail:       r.Customer.Email,
		AccountHolderName:   d.AccountHolderName,
		SortCodeMasked:      MaskSortCode(d.SortCode),
		AccountNumberMasked: MaskAccountNumber(d.AccountNumber),
		SignatureName:       d.SignatureName,
		ConsentAt:           now,
		ConsentIP:           c.IP,
		ConsentUserAgent:    c.UserAgent,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	details, err := json.Marshal(BankDetails{
		AccountHolderName: d.AccountHolderName,
		SortCode:          d.SortCode,
		AccountNumber:     d.AccountNumber,
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToSeal, err)
	}
	if m.EncryptedBankDetails, err = s.box.Seal(m.ID.String(), details); err != nil {
		return nil, errors.Join(ErrFailedToSeal, err)
	}

	if err := s.store.CreateMandate(ctx, m); err != nil {
		if errors.Is(err, paymentrequest.ErrWrongStatus) {
			current, gerr := s.requests.Get(ctx, r.ID)
			if gerr != nil {
				return nil, gerr
			}
			return nil, paymentrequest.StatusError(current.Status)
		}
		return nil, errors.Join(ErrFailedToCreate, err)
	}

	s.record(ctx, "mandate.created",
		audit.WithResource("mandate", m.ID.String()),
		audit.WithUserID(m.UserID.String()),
		audit.WithMetadata("mandate_reference", m.Reference),
		audit.WithMetadata("payment_request_id", r.ID.String()),
		audit.WithMetadata("account_number", d.AccountNumber),
		audit.WithMetadata("sort_code", d.SortCode),
	)
	s.log.InfoContext(ctx, "mandate submitted",
		logger.MandateID(m.ID),
		logger.PaymentRequestID(r.ID),
		logger.UserID(m.UserID),
	)

	if s.notifier != nil {
		if err := s.notifier.MandateReceived(ctx, m); err != nil {
			s.log.WarnContext(ctx, "failed to email mandate confirmation", logger.MandateID(m.ID), logger.Error(err))
		}
	}
	return m, nil
}

// Get loads a mandate.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Mandate, error) {
	return s.store.GetMandate(ctx, id)
}

// Transition moves a mandate to to on behalf of actor and notifies the
// customer. Repeating a transition that already happened returns the
// mandate unchanged without a second notification.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, actor string) (*Mandate, error) {
	m, err := s.store.GetMandate(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == to {
		return m, nil
	}
	if err := Transitions.Check(m.Status, to); err != nil {
		return nil, err
	}

	from := m.Status
	now := s.now().UTC()
	ok, err := s.store.TransitionMandate(ctx, id, []Status{from}, to, now)
	if err != nil {
		return nil, errors.Join(ErrFailedToTransition, err)
	}
	if !ok {
		current, err := s.store.GetMandate(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		return nil, Transitions.Check(current.Status, to)
	}
	m.Status = to
	m.UpdatedAt = now

	s.record(ctx, "mandate.status_changed",
		audit.WithResource("mandate", m.ID.String()),
		audit.WithUserID(m.UserID.String()),
		audit.WithMetadata("from", string(from)),
		audit.WithMetadata("to", string(to)),
		audit.WithMetadata("actor", actor),
	)
	s.log.InfoContext(ctx, "mandate status changed",
		logger.MandateID(m.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("actor", actor),
	)

	if s.notifier != nil {
		if err := s.notifier.MandateStatusChanged(ctx, m, from); err != nil {
			s.log.WarnContext(ctx, "failed to email mandate status", logger.MandateID(m.ID), logger.Error(err))
		}
	}
	return m, nil
}

// RevealBankDetails opens the sealed bank details for submission to the
// Direct Debit provider. Cancelled and failed mandates are revoked.
func (s *Service) RevealBankDetails(ctx context.Context, id uuid.UUID, actor string) (*BankDetails, error) {
	m, err := s.store.GetMandate(ctx, id)
	if err != nil {
		return nil, err
	}
	if Transitions.IsTerminal(m.Status) {
		return nil, ErrRevoked
	}

	plain, err := s.box.Open(m.ID.String(), m.EncryptedBankDetails)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpen, err)
	}
	var details BankDetails
	if err := json.Unmarshal(plain, &details); err != nil {
		return nil, errors.Join(ErrFailedToOpen, err)
	}

	s.record(ctx, "mandate.bank_details_revealed",
		audit.WithResource("mandate", m.ID.String()),
		audit.WithUserID(m.UserID.String()),
		audit.WithMetadata("actor", actor),
	)
	return &details, nil
}

func (s *Service) record(ctx context.Context, action string, opts ...audit.EventOption) {
	if err := s.audit.Log(ctx, action, opts...); err != nil {
		s.log.WarnContext(ctx, "failed to record audit event", logger.Event(action), logger.Error(err))
	}
}
