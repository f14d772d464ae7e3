package mandate_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/secrets"
	"github.com/linehub/billing/pkg/statemachine"
	"github.com/linehub/billing/pkg/validator"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/store/memstore"
)

type notifications struct {
	mu       sync.Mutex
	received []*mandate.Mandate
	changes  []mandate.Status
}

func (n *notifications) MandateReceived(_ context.Context, m *mandate.Mandate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, m)
	return nil
}

func (n *notifications) MandateStatusChanged(_ context.Context, m *mandate.Mandate, _ mandate.Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, m.Status)
	return nil
}

type env struct {
	store    *memstore.Store
	requests *paymentrequest.Service
	svc      *mandate.Service
	notes    *notifications
}

func newEnv(t *testing.T) *env {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	box, err := secrets.NewBox(key, "mandate-bank-details")
	require.NoError(t, err)

	store := memstore.New()
	clock := func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	requests := paymentrequest.NewService(store, paymentrequest.WithClock(clock))
	notes := &notifications{}
	svc := mandate.NewService(store, requests, box,
		mandate.WithClock(clock),
		mandate.WithNotifier(notes),
		mandate.WithAuditLogger(audit.NewLogger(store)),
	)
	return &env{store: store, requests: requests, svc: svc, notes: notes}
}

func (e *env) ddLink(t *testing.T) *paymentrequest.Issued {
	t.Helper()
	issued, err := e.requests.Create(context.Background(), paymentrequest.CreateParams{
		Type:     paymentrequest.TypeDDSetup,
		Customer: paymentrequest.Customer{UserID: uuid.New(), Name: "Jane Doe", Email: "jane@example.com"},
	})
	require.NoError(t, err)
	return issued
}

func validData() mandate.Data {
	return mandate.Data{
		AccountHolderName:      "  Jane Doe ",
		SortCode:               "123456",
		AccountNumber:          "12345678",
		SignatureName:          "Jane Doe",
		AccountHolderConfirmed: true,
		GuaranteeAcknowledged:  true,
	}
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	issued := e.ddLink(t)

	m, err := e.svc.Submit(ctx, issued.Token, validData(), mandate.Consent{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)

	assert.Equal(t, mandate.StatusPending, m.Status)
	assert.Regexp(t, `^DD-20250310-[0-9A-Z]{6}$`, m.Reference)
	assert.Equal(t, "Jane Doe", m.AccountHolderName)
	assert.Equal(t, "**-**-56", m.SortCodeMasked)
	assert.Equal(t, "****5678", m.AccountNumberMasked)
	assert.Equal(t, "203.0.113.7", m.ConsentIP)
	assert.Equal(t, issued.Request.Customer.UserID, m.UserID)
	assert.NotContains(t, m.EncryptedBankDetails, "12345678")

	r, err := e.requests.Get(ctx, issued.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentrequest.StatusCompleted, r.Status)

	require.Len(t, e.notes.received, 1)

	events := e.store.AuditEvents("mandate.created")
	require.Len(t, events, 1)
	assert.Equal(t, "******78", events[0].Metadata["account_number"], "bank details are masked in the audit trail")

	details, err := e.svc.RevealBankDetails(ctx, m.ID, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", details.SortCode)
	assert.Equal(t, "12345678", details.AccountNumber)
	assert.Len(t, e.store.AuditEvents("mandate.bank_details_revealed"), 1)

	_, err = e.svc.Submit(ctx, issued.Token, validData(), mandate.Consent{})
	assert.ErrorIs(t, err, paymentrequest.ErrAlreadyCompleted, "a link yields one mandate")
	assert.Len(t, e.store.Mandates(), 1)
}

func TestSubmitRejectsInvalidDataBeforeAnyWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*mandate.Data)
		field  string
	}{
		{"sort code with dashes", func(d *mandate.Data) { d.SortCode = "12-34-56" }, "sortCode"},
		{"short account number", func(d *mandate.Data) { d.AccountNumber = "1234567" }, "accountNumber"},
		{"letters in account number", func(d *mandate.Data) { d.AccountNumber = "1234567a" }, "accountNumber"},
		{"blank holder", func(d *mandate.Data) { d.AccountHolderName = "   " }, "accountHolderName"},
		{"long holder", func(d *mandate.Data) { d.AccountHolderName = strings.Repeat("x", 41) }, "accountHolderName"},
		{"no signature", func(d *mandate.Data) { d.SignatureName = "" }, "signatureName"},
		{"holder not confirmed", func(d *mandate.Data) { d.AccountHolderConfirmed = false }, "accountHolderConfirmed"},
		{"guarantee not acknowledged", func(d *mandate.Data) { d.GuaranteeAcknowledged = false }, "guaranteeAcknowledged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			ctx := context.Background()
			issued := e.ddLink(t)
			d := validData()
			tt.mutate(&d)

			_, err := e.svc.Submit(ctx, issued.Token, d, mandate.Consent{})
			require.Error(t, err)
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.True(t, verrs.Has(tt.field))

			assert.Empty(t, e.store.Mandates())
			r, err := e.requests.Get(ctx, issued.Request.ID)
			require.NoError(t, err)
			assert.Equal(t, paymentrequest.StatusSent, r.Status, "the link is not even opened")
		})
	}
}

func TestSubmitRejectsCardToken(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	issued, err := e.requests.Create(context.Background(), paymentrequest.CreateParams{
		Type:     paymentrequest.TypeCardPayment,
		Amount:   decimalOne(),
		Customer: paymentrequest.Customer{UserID: uuid.New(), Name: "Jane", Email: "jane@example.com"},
	})
	require.NoError(t, err)

	_, err = e.svc.Submit(context.Background(), issued.Token, validData(), mandate.Consent{})
	assert.ErrorIs(t, err, paymentrequest.ErrNotFound)
}

func TestTransition(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	m, err := e.svc.Submit(ctx, e.ddLink(t).Token, validData(), mandate.Consent{})
	require.NoError(t, err)

	for _, to := range []mandate.Status{mandate.StatusVerified, mandate.StatusSubmittedToProvider, mandate.StatusActive} {
		got, err := e.svc.Transition(ctx, m.ID, to, "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, to, got.Status)
	}

	again, err := e.svc.Transition(ctx, m.ID, mandate.StatusActive, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, mandate.StatusActive, again.Status)
	assert.Equal(t, []mandate.Status{mandate.StatusVerified, mandate.StatusSubmittedToProvider, mandate.StatusActive}, e.notes.changes)

	_, err = e.svc.Transition(ctx, m.ID, mandate.StatusPending, "admin@example.com")
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, err = e.svc.Transition(ctx, m.ID, mandate.StatusCancelled, "admin@example.com")
	require.NoError(t, err)

	_, err = e.svc.Transition(ctx, m.ID, mandate.StatusActive, "admin@example.com")
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, err = e.svc.RevealBankDetails(ctx, m.ID, "admin@example.com")
	assert.ErrorIs(t, err, mandate.ErrRevoked)

	assert.Len(t, e.store.AuditEvents("mandate.status_changed"), 4)

	_, err = e.svc.Transition(ctx, uuid.New(), mandate.StatusVerified, "admin@example.com")
	assert.ErrorIs(t, err, mandate.ErrNotFound)
}

func TestTransitionSkippingStepsIsRejected(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	m, err := e.svc.Submit(ctx, e.ddLink(t).Token, validData(), mandate.Consent{})
	require.NoError(t, err)

	_, err = e.svc.Transition(ctx, m.ID, mandate.StatusActive, "admin@example.com")
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	got, err := e.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, mandate.StatusPending, got.Status)
}
