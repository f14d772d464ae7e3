package paymentrequest_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/validator"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/store/memstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, opts ...paymentrequest.Option) (*paymentrequest.Service, *memstore.Store, *clock) {
	t.Helper()
	store := memstore.New()
	clk := &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	opts = append([]paymentrequest.Option{
		paymentrequest.WithClock(clk.Now),
		paymentrequest.WithPublicURL("https://portal.example.com/"),
		paymentrequest.WithAuditLogger(audit.NewLogger(store)),
	}, opts...)
	return paymentrequest.NewService(store, opts...), store, clk
}

func cardParams() paymentrequest.CreateParams {
	return paymentrequest.CreateParams{
		Type:        paymentrequest.TypeCardPayment,
		Amount:      decimal.RequireFromString("26.99"),
		Description: "Broadband March",
		Customer: paymentrequest.Customer{
			UserID: uuid.New(),
			Name:   "Jane Doe",
			Email:  "jane@example.com",
		},
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	svc, store, clk := newService(t)
	ctx := context.Background()

	issued, err := svc.Create(ctx, cardParams())
	require.NoError(t, err)

	r := issued.Request
	assert.Equal(t, paymentrequest.StatusSent, r.Status)
	assert.Equal(t, "GBP", r.Currency)
	assert.Equal(t, clk.Now().Add(paymentrequest.DefaultTTL), r.ExpiresAt)
	assert.Equal(t, paymentrequest.HashToken(issued.Token), r.TokenHash)
	assert.NotContains(t, r.TokenHash, issued.Token)

	link, err := url.Parse(issued.Link)
	require.NoError(t, err)
	assert.Equal(t, "portal.example.com", link.Host)
	assert.Equal(t, "/pay", link.Path)
	assert.Equal(t, issued.Token, link.Query().Get("token"))

	stored, err := store.GetPaymentRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.TokenHash, stored.TokenHash)
}

func TestCreateDirectDebitLink(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	p := cardParams()
	p.Type = paymentrequest.TypeDDSetup
	p.Amount = decimal.Zero
	p.TTL = time.Hour

	issued, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, issued.Link, "/dd/setup?token=")
	assert.Equal(t, issued.Request.CreatedAt.Add(time.Hour), issued.Request.ExpiresAt)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*paymentrequest.CreateParams)
		field  string
	}{
		{"zero card amount", func(p *paymentrequest.CreateParams) { p.Amount = decimal.Zero }, "amount"},
		{"sub-penny amount", func(p *paymentrequest.CreateParams) { p.Amount = decimal.RequireFromString("1.005") }, "amount"},
		{"unknown type", func(p *paymentrequest.CreateParams) { p.Type = "cash" }, "type"},
		{"bad email", func(p *paymentrequest.CreateParams) { p.Customer.Email = "nope" }, "customer.email"},
		{"missing name", func(p *paymentrequest.CreateParams) { p.Customer.Name = "" }, "customer.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newService(t)
			p := cardParams()
			tt.mutate(&p)

			_, err := svc.Create(context.Background(), p)
			require.Error(t, err)
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.True(t, verrs.Has(tt.field), "expected error on %s, got %v", tt.field, verrs)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("first open moves sent to opened", func(t *testing.T) {
		t.Parallel()

		svc, store, clk := newService(t)
		ctx := context.Background()
		issued, err := svc.Create(ctx, cardParams())
		require.NoError(t, err)

		clk.Advance(time.Minute)
		r, err := svc.Validate(ctx, issued.Token, paymentrequest.TypeCardPayment)
		require.NoError(t, err)
		assert.Equal(t, paymentrequest.StatusOpened, r.Status)
		require.NotNil(t, r.OpenedAt)
		assert.Equal(t, clk.Now(), *r.OpenedAt)

		// Second call is a read.
		again, err := svc.Validate(ctx, issued.Token, paymentrequest.TypeCardPayment)
		require.NoError(t, err)
		assert.Equal(t, paymentrequest.StatusOpened, again.Status)

		events := store.AuditEvents("payment_request.opened")
		require.Len(t, events, 2)
		assert.Equal(t, true, events[0].Metadata["first_open"])
		assert.Equal(t, false, events[1].Metadata["first_open"])
	})

	t.Run("unknown and empty tokens are not found", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newService(t)
		_, err := svc.Validate(context.Background(), "", paymentrequest.TypeCardPayment)
		assert.ErrorIs(t, err, paymentrequest.ErrNotFound)

		_, err = svc.Validate(context.Background(), "not-a-token", paymentrequest.TypeCardPayment)
		assert.ErrorIs(t, err, paymentrequest.ErrNotFound)
	})

	t.Run("type mismatch is not found", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newService(t)
		issued, err := svc.Create(context.Background(), cardParams())
		require.NoError(t, err)

		_, err = svc.Validate(context.Background(), issued.Token, paymentrequest.TypeDDSetup)
		assert.ErrorIs(t, err, paymentrequest.ErrNotFound)
		_, err = svc.Validate(context.Background(), issued.Token, "")
		assert.ErrorIs(t, err, paymentrequest.ErrNotFound, "no wildcard type")
	})

	t.Run("expired one second ago", func(t *testing.T) {
		t.Parallel()

		svc, store, clk := newService(t)
		ctx := context.Background()
		issued, err := svc.Create(ctx, cardParams())
		require.NoError(t, err)

		clk.Advance(paymentrequest.DefaultTTL + time.Second)
		_, err = svc.Validate(ctx, issued.Token, paymentrequest.TypeCardPayment)
		assert.ErrorIs(t, err, paymentrequest.ErrExpired)

		stored, err := store.GetPaymentRequest(ctx, issued.Request.ID)
		require.NoError(t, err)
		assert.Equal(t, paymentrequest.StatusSent, stored.Status, "expiry is derived, never stored")
		assert.Equal(t, paymentrequest.StatusExpired, stored.EffectiveStatus(clk.Now()))
	})

	t.Run("valid at the exact expiry instant", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := newService(t)
		issued, err := svc.Create(context.Background(), cardParams())
		require.NoError(t, err)

		clk.Advance(paymentrequest.DefaultTTL)
		_, err = svc.Validate(context.Background(), issued.Token, paymentrequest.TypeCardPayment)
		assert.NoError(t, err)
	})

	t.Run("completed request is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newService(t)
		ctx := context.Background()
		issued, err := svc.Create(ctx, cardParams())
		require.NoError(t, err)
		require.NoError(t, svc.Transition(ctx, issued.Request.ID, paymentrequest.StatusCompleted))

		_, err = svc.Validate(ctx, issued.Token, paymentrequest.TypeCardPayment)
		assert.ErrorIs(t, err, paymentrequest.ErrAlreadyCompleted)
		assert.ErrorIs(t, err, paymentrequest.ErrWrongStatus)
	})

	t.Run("cancelled request is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newService(t)
		ctx := context.Background()
		issued, err := svc.Create(ctx, cardParams())
		require.NoError(t, err)
		require.NoError(t, svc.Transition(ctx, issued.Request.ID, paymentrequest.StatusCancelled))

		_, err = svc.Validate(ctx, issued.Token, paymentrequest.TypeCardPayment)
		assert.ErrorIs(t, err, paymentrequest.ErrWrongStatus)
		assert.NotErrorIs(t, err, paymentrequest.ErrAlreadyCompleted)
	})

	t.Run("concurrent opens record one first open", func(t *testing.T) {
		t.Parallel()

		svc, store, _ := newService(t)
		ctx := context.Background()
		issued, err := svc.Create(ctx, cardParams())
		require.NoError(t, err)

		var wg sync.WaitGroup
		var failures atomic.Int32
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := svc.Validate(ctx, issued.Token, paymentrequest.TypeCardPayment); err != nil {
					failures.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Zero(t, failures.Load())
		first := 0
		for _, e := range store.AuditEvents("payment_request.opened") {
			if e.Metadata["first_open"] == true {
				first++
			}
		}
		assert.Equal(t, 1, first)
	})
}

func TestTransition(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()
	issued, err := svc.Create(ctx, cardParams())
	require.NoError(t, err)
	id := issued.Request.ID

	require.NoError(t, svc.Transition(ctx, id, paymentrequest.StatusOpened))
	require.NoError(t, svc.Transition(ctx, id, paymentrequest.StatusCompleted))

	err = svc.Transition(ctx, id, paymentrequest.StatusFailed)
	assert.ErrorIs(t, err, paymentrequest.ErrAlreadyCompleted)

	err = svc.Transition(ctx, id, paymentrequest.StatusSent)
	assert.ErrorIs(t, err, paymentrequest.ErrWrongStatus)

	r, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, paymentrequest.StatusCompleted, r.Status)
	assert.NotNil(t, r.CompletedAt)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, paymentrequest.ErrNotFound)
}

func TestCancelActiveForInvoice(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	ctx := context.Background()
	invoiceID := uuid.New()

	var tokens []string
	for range 2 {
		p := cardParams()
		p.InvoiceID = &invoiceID
		issued, err := svc.Create(ctx, p)
		require.NoError(t, err)
		tokens = append(tokens, issued.Token)
	}
	paid := cardParams()
	paid.InvoiceID = &invoiceID
	done, err := svc.Create(ctx, paid)
	require.NoError(t, err)
	require.NoError(t, svc.Transition(ctx, done.Request.ID, paymentrequest.StatusCompleted))

	n, err := svc.CancelActiveForInvoice(ctx, invoiceID, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, tok := range tokens {
		_, err := svc.Validate(ctx, tok, paymentrequest.TypeCardPayment)
		assert.ErrorIs(t, err, paymentrequest.ErrWrongStatus)
	}
	assert.Len(t, store.AuditEvents("payment_request.cancelled"), 2)

	n, err = svc.CancelActiveForInvoice(ctx, invoiceID, uuid.Nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancelActiveForInvoiceKeepsNewLink(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()
	invoiceID := uuid.New()

	p := cardParams()
	p.InvoiceID = &invoiceID
	old, err := svc.Create(ctx, p)
	require.NoError(t, err)
	fresh, err := svc.Create(ctx, p)
	require.NoError(t, err)

	n, err := svc.CancelActiveForInvoice(ctx, invoiceID, fresh.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Validate(ctx, old.Token, paymentrequest.TypeCardPayment)
	assert.ErrorIs(t, err, paymentrequest.ErrWrongStatus)
	r, err := svc.Validate(ctx, fresh.Token, paymentrequest.TypeCardPayment)
	require.NoError(t, err)
	assert.Equal(t, fresh.Request.ID, r.ID)
}

type linkRecorder struct {
	mu     sync.Mutex
	issued []*paymentrequest.Issued
	err    error
}

func (l *linkRecorder) PaymentLink(_ context.Context, issued *paymentrequest.Issued) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued = append(l.issued, issued)
	return l.err
}

func TestRequestDeliversLink(t *testing.T) {
	t.Parallel()

	rec := &linkRecorder{err: errors.New("smtp down")}
	svc, _, _ := newService(t, paymentrequest.WithLinkNotifier(rec))

	issued, err := svc.Request(context.Background(), cardParams())
	require.NoError(t, err, "delivery failure does not fail the request")
	require.Len(t, rec.issued, 1)
	assert.Equal(t, issued.Link, rec.issued[0].Link)
}
