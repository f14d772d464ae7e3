package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/pkg/reference"
	"github.com/linehub/billing/pkg/token"
	"github.com/linehub/billing/svc/paymentrequest"
)

// Requests is the part of the payment request service the bridge uses.
type Requests interface {
	Validate(ctx context.Context, raw string, typ paymentrequest.Type) (*paymentrequest.PaymentRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*paymentrequest.PaymentRequest, error)
}

// ReceiptNotice is a settled payment ready to be confirmed to the customer.
type ReceiptNotice struct {
	Receipt *Receipt
	Request *paymentrequest.PaymentRequest
}

// Notifier emails payment receipts.
type Notifier interface {
	PaymentReceipt(ctx context.Context, n ReceiptNotice) error
}

// Session is a created hosted checkout.
type Session struct {
	CheckoutURL          string    `json:"checkoutUrl"`
	TransactionReference string    `json:"transactionReference"`
	AttemptID            uuid.UUID `json:"-"`
}

// Result reports a settlement. Status is "paid", "failed" or "cancelled".
type Result struct {
	PaymentRequestID uuid.UUID `json:"request_id"`
	Outcome          Outcome   `json:"outcome"`
	Status           string    `json:"status"`
	Receipt          *Receipt  `json:"receipt,omitempty"`
}

// returnClaims are signed into every return URL so a browser cannot
// construct a success redirect it was never sent.
type returnClaims struct {
	RequestID string  `json:"rid"`
	Outcome   Outcome `json:"st"`
	Reference string  `json:"ref"`
}

// Bridge creates hosted checkout sessions and settles their outcomes.
type Bridge struct {
	store        Store
	requests     Requests
	provider     Provider
	notifier     Notifier
	audit        *audit.Logger
	log          *slog.Logger
	returnSecret []byte
	allowedHosts []string
	now          func() time.Time
}

// NewBridge creates a Bridge. Panics if any dependency is nil.
func NewBridge(store Store, requests Requests, provider Provider, opts ...Option) *Bridge {
	if store == nil {
		panic("checkout: store is required")
	}
	if requests == nil {
		panic("checkout: payment request service is required")
	}
	if provider == nil {
		panic("checkout: provider is required")
	}

	b := &Bridge{
		store:    store,
		requests: requests,
		provider: provider,
		audit:    audit.Discard(),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Component("checkout"), logger.Provider(provider.Name()))
	return b
}

// CreateSession validates a card payment token, opens a provider checkout
// and records a pending attempt before handing back the redirect URL.
func (b *Bridge) CreateSession(ctx context.Context, rawToken, returnURL string) (*Session, error) {
	r, err := b.requests.Validate(ctx, rawToken, paymentrequest.TypeCardPayment)
	if err != nil {
		return nil, err
	}

	base, err := b.parseReturnURL(returnURL)
	if err != nil {
		return nil, err
	}

	minor, err := money.MinorUnits(r.Amount, r.Currency)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	ref := TransactionReference(r.ID, now)

	req := SessionRequest{
		PaymentRequestID:     r.ID,
		TransactionReference: ref,
		AmountMinor:          minor,
		Currency:             r.Currency,
		Description:          r.Description,
		CustomerName:         r.Customer.Name,
		CustomerEmail:        r.Customer.Email,
	}
	if req.SuccessURL, err = b.returnURL(base, r.ID, OutcomeSuccess, ref); err != nil {
		return nil, err
	}
	if req.FailureURL, err = b.returnURL(base, r.ID, OutcomeFailed, ref); err != nil {
		return nil, err
	}
	if req.CancelURL, err = b.returnURL(base, r.ID, OutcomeCancelled, ref); err != nil {
		return nil, err
	}

	ps, err := b.provider.CreateSession(ctx, req)
	if err != nil {
		b.log.ErrorContext(ctx, "provider rejected checkout session",
			logger.PaymentRequestID(r.ID),
			slog.String("transaction_reference", ref),
			logger.Error(err),
		)
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if ps.CheckoutURL == "" {
		return nil, errors.Join(ErrProviderUnavailable, ErrNoCheckoutURL)
	}

	attempt := &Attempt{
		ID:                   uuid.New(),
		PaymentRequestID:     r.ID,
		TransactionReference: ref,
		ProviderReference:    ps.ProviderReference,
		Provider:             b.provider.Name(),
		Status:               AttemptPending,
		AmountMinor:          minor,
		Currency:             r.Currency,
		CheckoutURL:          ps.CheckoutURL,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := b.store.CreatePaymentAttempt(ctx, attempt); err != nil {
		return nil, errors.Join(ErrFailedToRecordAttempt, err)
	}

	b.record(ctx, "payment.session_created",
		audit.WithResource("payment_request", r.ID.String()),
		audit.WithUserID(r.Customer.UserID.String()),
		audit.WithMetadata("transaction_reference", ref),
		audit.WithMetadata("amount_minor", minor),
	)
	b.log.InfoContext(ctx, "checkout session created",
		logger.PaymentRequestID(r.ID),
		slog.String("transaction_reference", ref),
	)

	return &Session{CheckoutURL: ps.CheckoutURL, TransactionReference: ref, AttemptID: attempt.ID}, nil
}

// VerifyParams is a browser-reported outcome from a provider return URL.
type VerifyParams struct {
	RequestID uuid.UUID
	Outcome   Outcome

	// Signature is the sig query parameter of the return URL. Required when
	// the bridge signs return URLs.
	Signature string
}

// VerifyOutcome settles a browser-reported outcome. A completed request
// yields paymentrequest.ErrAlreadyCompleted and changes nothing. When the
// provider can be queried, a reported success is settled only once the
// provider confirms it.
func (b *Bridge) VerifyOutcome(ctx context.Context, p VerifyParams) (*Result, error) {
	if !p.Outcome.Valid() {
		return nil, ErrInvalidOutcome
	}
	log := b.log.With(logger.PaymentRequestID(p.RequestID), slog.String("outcome", string(p.Outcome)))

	if len(b.returnSecret) > 0 {
		claims, err := token.Parse[returnClaims](p.Signature, b.returnSecret)
		if err != nil || claims.RequestID != p.RequestID.String() || claims.Outcome != p.Outcome {
			log.WarnContext(ctx, "return URL signature rejected", logger.Error(err))
			return nil, ErrUnverifiedOutcome
		}
	}

	r, err := b.requests.Get(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if r.Type != paymentrequest.TypeCardPayment {
		return nil, paymentrequest.ErrNotFound
	}
	if !r.IsActive() {
		return nil, paymentrequest.StatusError(r.Status)
	}

	attempt, err := b.store.LatestPendingPaymentAttempt(ctx, r.ID)
	if errors.Is(err, ErrAttemptNotFound) {
		// A concurrent settlement may have closed the attempt since the read above.
		if current, gerr := b.requests.Get(ctx, r.ID); gerr == nil && !current.IsActive() {
			return nil, paymentrequest.StatusError(current.Status)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	outcome := p.Outcome
	corroborated := false
	if q, ok := b.provider.(StatusQuerier); ok {
		confirmed, err := q.QueryStatus(ctx, attempt)
		switch {
		case err != nil && outcome == OutcomeSuccess:
			log.ErrorContext(ctx, "provider status query failed", logger.Error(err))
			return nil, errors.Join(ErrProviderUnavailable, err)
		case err != nil:
			log.WarnContext(ctx, "provider status query failed, settling reported outcome", logger.Error(err))
		case confirmed == OutcomeSuccess:
			outcome, corroborated = OutcomeSuccess, true
		case outcome == OutcomeSuccess:
			log.WarnContext(ctx, "provider did not confirm reported success",
				slog.String("provider_outcome", string(confirmed)),
				slog.String("transaction_reference", attempt.TransactionReference),
			)
			return nil, ErrUnverifiedOutcome
		case confirmed != "":
			outcome, corroborated = confirmed, true
		}
	} else if outcome == OutcomeSuccess {
		log.WarnContext(ctx, "settling uncorroborated provider redirect",
			slog.String("transaction_reference", attempt.TransactionReference),
		)
	}

	return b.settle(ctx, r, attempt, outcome, corroborated)
}

// HandleProviderEvent settles a verified provider notification. Events for
// unknown transactions, or for requests already settled the same way, are
// acknowledged without changes.
func (b *Bridge) HandleProviderEvent(ctx context.Context, ev ProviderEvent) error {
	if ev.Outcome == "" {
		return nil
	}
	if !ev.Outcome.Valid() {
		return ErrInvalidOutcome
	}
	log := b.log.With(
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
		slog.String("transaction_reference", ev.TransactionReference),
	)

	attempt, err := b.store.GetPaymentAttemptByReference(ctx, ev.TransactionReference)
	if errors.Is(err, ErrAttemptNotFound) {
		log.WarnContext(ctx, "provider event for unknown transaction")
		return nil
	}
	if err != nil {
		return err
	}

	r, err := b.requests.Get(ctx, attempt.PaymentRequestID)
	if err != nil {
		return err
	}
	if !r.IsActive() {
		if ev.Outcome == OutcomeSuccess && r.Status != paymentrequest.StatusCompleted {
			log.ErrorContext(ctx, "provider settled a payment for a closed request",
				logger.PaymentRequestID(r.ID),
				slog.String("request_status", string(r.Status)),
			)
		}
		return nil
	}

	_, err = b.settle(ctx, r, attempt, ev.Outcome, true)
	if errors.Is(err, paymentrequest.ErrWrongStatus) {
		return nil
	}
	return err
}

// Receipt returns the receipt for a paid request.
func (b *Bridge) Receipt(ctx context.Context, requestID uuid.UUID) (*Receipt, error) {
	return b.store.GetReceiptByPaymentRequest(ctx, requestID)
}

func (b *Bridge) settle(ctx context.Context, r *paymentrequest.PaymentRequest, attempt *Attempt, outcome Outcome, corroborated bool) (*Result, error) {
	now := b.now().UTC()
	s := Settlement{
		PaymentRequestID: r.ID,
		AttemptID:        attempt.ID,
		Outcome:          outcome,
		Corroborated:     corroborated,
		At:               now,
	}
	if outcome == OutcomeSuccess {
		s.InvoiceID = r.InvoiceID
		s.Receipt = &Receipt{
			ID:                   uuid.New(),
			PaymentRequestID:     r.ID,
			InvoiceID:            r.InvoiceID,
			UserID:               r.Customer.UserID,
			Reference:            reference.New("RCP", now),
			Amount:               r.Amount,
			Currency:             r.Currency,
			TransactionReference: attempt.TransactionReference,
			CreatedAt:            now,
		}
	}

	if err := b.store.SettlePayment(ctx, s); err != nil {
		if errors.Is(err, paymentrequest.ErrWrongStatus) {
			current, gerr := b.requests.Get(ctx, r.ID)
			if gerr != nil {
				return nil, gerr
			}
			return nil, paymentrequest.StatusError(current.Status)
		}
		return nil, errors.Join(ErrFailedToSettle, err)
	}

	opts := []audit.EventOption{
		audit.WithResource("payment_request", r.ID.String()),
		audit.WithUserID(r.Customer.UserID.String()),
		audit.WithMetadata("outcome", string(outcome)),
		audit.WithMetadata("transaction_reference", attempt.TransactionReference),
		audit.WithMetadata("corroborated", corroborated),
	}
	if r.InvoiceID != nil {
		opts = append(opts, audit.WithMetadata("invoice_id", r.InvoiceID.String()))
	}
	if s.Receipt != nil {
		opts = append(opts, audit.WithMetadata("receipt_reference", s.Receipt.Reference))
	} else {
		opts = append(opts, audit.WithResult(audit.ResultFailure))
	}
	b.record(ctx, "payment.settled", opts...)

	b.log.InfoContext(ctx, "payment settled",
		logger.PaymentRequestID(r.ID),
		logger.InvoiceID(r.InvoiceID),
		slog.String("outcome", string(outcome)),
		slog.Bool("corroborated", corroborated),
	)

	if s.Receipt != nil && b.notifier != nil {
		if err := b.notifier.PaymentReceipt(ctx, ReceiptNotice{Receipt: s.Receipt, Request: r}); err != nil {
			b.log.WarnContext(ctx, "failed to email receipt", logger.PaymentRequestID(r.ID), logger.Error(err))
		}
	}

	return &Result{
		PaymentRequestID: r.ID,
		Outcome:          outcome,
		Status:           outcome.Label(),
		Receipt:          s.Receipt,
	}, nil
}

// Label is the status reported to the portal: "paid" for success.
func (o Outcome) Label() string {
	if o == OutcomeSuccess {
		return "paid"
	}
	return string(o)
}

func (b *Bridge) parseReturnURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, ErrInvalidReturnURL
	}
	if len(b.allowedHosts) > 0 && !slices.Contains(b.allowedHosts, u.Host) {
		return nil, ErrInvalidReturnURL
	}
	return u, nil
}

func (b *Bridge) returnURL(base *url.URL, requestID uuid.UUID, outcome Outcome, ref string) (string, error) {
	u := *base
	q := u.Query()
	q.Set("requestId", requestID.String())
	q.Set("status", string(outcome))
	if len(b.returnSecret) > 0 {
		sig, err := token.Generate(returnClaims{RequestID: requestID.String(), Outcome: outcome, Reference: ref}, b.returnSecret)
		if err != nil {
			return "", err
		}
		q.Set("sig", sig)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *Bridge) record(ctx context.Context, action string, opts ...audit.EventOption) {
	if err := b.audit.Log(ctx, action, opts...); err != nil {
		b.log.WarnContext(ctx, "failed to record audit event", logger.Event(action), logger.Error(err))
	}
}
