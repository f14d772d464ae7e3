package reminder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/email"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/notify"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/reminder"
	"github.com/linehub/billing/svc/store/memstore"
)

type outbox struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg email.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	o.sent = append(o.sent, msg)
	return uuid.NewString(), nil
}

func (o *outbox) messages() []email.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]email.Message(nil), o.sent...)
}

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type env struct {
	store      *memstore.Store
	requests   *paymentrequest.Service
	dispatcher *reminder.Dispatcher
	outbox     *outbox
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	clock := func() time.Time { return today.Add(8 * time.Hour) }
	box := &outbox{}

	requests := paymentrequest.NewService(store,
		paymentrequest.WithClock(clock),
		paymentrequest.WithPublicURL("https://portal.example.com"),
		paymentrequest.WithAuditLogger(audit.NewLogger(store)),
	)
	l := ledger.New(store, box, ledger.WithClock(clock))
	notifier, err := notify.New(l, notify.Brand{CompanyName: "LineHub", SupportEmail: "support@linehub.example"})
	require.NoError(t, err)

	return &env{
		store:    store,
		requests: requests,
		outbox:   box,
		dispatcher: reminder.NewDispatcher(store, requests, l, notifier,
			reminder.WithClock(clock),
			reminder.WithAuditLogger(audit.NewLogger(store)),
		),
	}
}

func (e *env) invoice(t *testing.T, due time.Time, status billing.InvoiceStatus) *billing.Invoice {
	t.Helper()
	userID := uuid.New()
	e.store.PutProfile(billing.Profile{UserID: userID, Name: "Jane Doe", Email: "jane@example.com"})
	start := due.AddDate(0, 0, -14)
	inv := &billing.Invoice{
		ID:                 uuid.New(),
		UserID:             userID,
		Number:             "INV-202502-" + uuid.NewString()[:6],
		Status:             status,
		Subtotal:           decimal.RequireFromString("26.99"),
		Total:              decimal.RequireFromString("26.99"),
		Currency:           "GBP",
		BillingPeriodStart: start,
		BillingPeriodEnd:   billing.PeriodEnd(start),
		DueDate:            due,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
	require.NoError(t, e.store.CreateInvoice(context.Background(), inv))
	return inv
}

func TestMilestoneTargetDueDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, today.AddDate(0, 0, 3), reminder.DefaultMilestones[0].TargetDueDate(today))
	assert.Equal(t, today, reminder.DefaultMilestones[1].TargetDueDate(today))
	assert.Equal(t, today.AddDate(0, 0, -7), reminder.DefaultMilestones[2].TargetDueDate(today.Add(15*time.Hour)))
}

func TestRunTwiceSendsOnce(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, today.AddDate(0, 0, 3), billing.InvoiceSent)

	summary, err := e.dispatcher.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, reminder.TemplateUpcoming, summary.Results[0].Template)
	assert.Equal(t, inv.ID, summary.Results[0].InvoiceID)

	summary, err = e.dispatcher.Run(ctx, today)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, reminder.ReasonAlreadySent, summary.Results[0].Reason)

	entries := e.store.LedgerEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, reminder.TemplateUpcoming, entries[0].TemplateName)
	assert.Equal(t, ledger.StatusSent, entries[0].Status)

	msgs := e.outbox.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "jane@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, inv.Number)
	assert.Contains(t, msgs[0].TextBody, "£26.99")
	assert.Contains(t, msgs[0].TextBody, "https://portal.example.com/pay?token=")

	// Exactly one live link for the invoice.
	assert.Len(t, activeRequests(e.store.PaymentRequests(inv.ID)), 1)
}

func TestRunRotatesPaymentLink(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, today, billing.InvoiceSent)

	old, err := e.requests.Create(ctx, paymentrequest.CreateParams{
		Type:      paymentrequest.TypeCardPayment,
		Amount:    inv.Total,
		Customer:  paymentrequest.Customer{UserID: inv.UserID, Name: "Jane Doe", Email: "jane@example.com"},
		InvoiceID: &inv.ID,
	})
	require.NoError(t, err)

	summary, err := e.dispatcher.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, reminder.TemplateDue, summary.Results[0].Template)

	_, err = e.requests.Validate(ctx, old.Token, paymentrequest.TypeCardPayment)
	assert.ErrorIs(t, err, paymentrequest.ErrWrongStatus, "the superseded link no longer works")

	requests := e.store.PaymentRequests(inv.ID)
	require.Len(t, requests, 2)
	active := activeRequests(requests)
	require.Len(t, active, 1)
	assert.NotEqual(t, old.Request.ID, active[0].ID)
	assert.True(t, inv.Total.Equal(active[0].Amount))
}

func TestRunKeepsOldLinkWhenIssueFails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, today, billing.InvoiceSent)

	old, err := e.requests.Create(ctx, paymentrequest.CreateParams{
		Type:      paymentrequest.TypeCardPayment,
		Amount:    inv.Total,
		Customer:  paymentrequest.Customer{UserID: inv.UserID, Name: "Jane Doe", Email: "jane@example.com"},
		InvoiceID: &inv.ID,
	})
	require.NoError(t, err)

	// A profile that no longer validates makes the new link fail to issue.
	e.store.PutProfile(billing.Profile{UserID: inv.UserID, Name: "", Email: "jane@example.com"})

	summary, err := e.dispatcher.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, reminder.ErrFailedToRotateLink.Error())

	_, err = e.requests.Validate(ctx, old.Token, paymentrequest.TypeCardPayment)
	assert.NoError(t, err, "the emailed link still works")
	assert.Len(t, activeRequests(e.store.PaymentRequests(inv.ID)), 1)
	assert.Empty(t, e.store.LedgerEntries())
	assert.Empty(t, e.outbox.messages())
}

type skippingNotifier struct{}

func (skippingNotifier) PaymentReminder(context.Context, reminder.Notice) (ledger.Result, error) {
	return ledger.Result{Outcome: ledger.OutcomeSkipped}, nil
}

func TestRunReportsSkippedDelivery(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, today, billing.InvoiceSent)

	old, err := e.requests.Create(ctx, paymentrequest.CreateParams{
		Type:      paymentrequest.TypeCardPayment,
		Amount:    inv.Total,
		Customer:  paymentrequest.Customer{UserID: inv.UserID, Name: "Jane Doe", Email: "jane@example.com"},
		InvoiceID: &inv.ID,
	})
	require.NoError(t, err)

	d := reminder.NewDispatcher(e.store, e.requests, ledger.New(e.store, e.outbox), skippingNotifier{})
	summary, err := d.Run(ctx, today)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, reminder.ReasonAlreadyRecorded, summary.Results[0].Reason)

	_, err = e.requests.Validate(ctx, old.Token, paymentrequest.TypeCardPayment)
	assert.NoError(t, err, "links are not rotated without a delivered reminder")
}

func TestRunMarksOverdue(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	inv := e.invoice(t, today.AddDate(0, 0, -7), billing.InvoiceSent)

	summary, err := e.dispatcher.Run(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, reminder.TemplateOverdue, summary.Results[0].Template)

	got, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceOverdue, got.Status)
	assert.Len(t, e.store.AuditEvents("invoice.overdue"), 1)

	msgs := e.outbox.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "overdue")
}

func TestRunIgnoresSettledInvoices(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.invoice(t, today, billing.InvoicePaid)
	e.invoice(t, today, billing.InvoiceCancelled)

	summary, err := e.dispatcher.Run(context.Background(), today)
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.Empty(t, e.outbox.messages())
}

func TestRunRecordsFailedDelivery(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.outbox.err = errors.New("postmark: 500")
	e.invoice(t, today, billing.InvoiceSent)

	summary, err := e.dispatcher.Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, "postmark: 500")

	entries := e.store.LedgerEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.StatusFailed, entries[0].Status)

	// A failed send is left for manual follow-up, not retried.
	e.outbox.err = nil
	summary, err = e.dispatcher.Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, e.outbox.messages())
}

func TestConcurrentRunsSendOnce(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	for range 5 {
		e.invoice(t, today, billing.InvoiceSent)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.dispatcher.Run(context.Background(), today)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, e.store.LedgerEntries(), 5)
	assert.Len(t, e.outbox.messages(), 5)
}

func activeRequests(rs []paymentrequest.PaymentRequest) []paymentrequest.PaymentRequest {
	var out []paymentrequest.PaymentRequest
	for _, r := range rs {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}
