package notify_test

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

	"github.com/linehub/billing/pkg/email"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/notify"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/reminder"
	"github.com/linehub/billing/svc/store/memstore"
)

type recorder struct {
	mu         sync.Mutex
	dispatches []ledger.Dispatch
	outcome    ledger.Outcome
	err        error
}

func (r *recorder) Send(_ context.Context, d ledger.Dispatch) (ledger.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return ledger.Result{}, r.err
	}
	r.dispatches = append(r.dispatches, d)
	outcome := r.outcome
	if outcome == "" {
		outcome = ledger.OutcomeSent
	}
	return ledger.Result{Outcome: outcome}, nil
}

func (r *recorder) last(t *testing.T) ledger.Dispatch {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.dispatches)
	return r.dispatches[len(r.dispatches)-1]
}

var brand = notify.Brand{CompanyName: "LineHub", SupportEmail: "help@linehub.example"}

func newNotifier(t *testing.T, sender notify.Sender, opts ...notify.Option) *notify.Notifier {
	t.Helper()
	n, err := notify.New(sender, brand, opts...)
	require.NoError(t, err)
	return n
}

func testInvoice() *billing.Invoice {
	return &billing.Invoice{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		Number:             "INV-202401-000001",
		Status:             billing.InvoiceDraft,
		Subtotal:           decimal.RequireFromString("26.99"),
		Total:              decimal.RequireFromString("26.99"),
		Currency:           "GBP",
		BillingPeriodStart: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		BillingPeriodEnd:   time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
		DueDate:            time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC),
	}
}

func issued(typ paymentrequest.Type, invoiceID *uuid.UUID) *paymentrequest.Issued {
	r := &paymentrequest.PaymentRequest{
		ID:          uuid.New(),
		Type:        typ,
		Amount:      decimal.RequireFromString("26.99"),
		Currency:    "GBP",
		Description: "Broadband installation",
		Customer:    paymentrequest.Customer{UserID: uuid.New(), Name: "Jane Doe", Email: "jane@example.com"},
		InvoiceID:   invoiceID,
		Status:      paymentrequest.StatusSent,
		ExpiresAt:   time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
	}
	return &paymentrequest.Issued{Request: r, Token: "tok", Link: "https://portal.example.com/pay?token=tok"}
}

func TestNewRequiresSender(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { _, _ = notify.New(nil, brand) })
}

func TestInvoiceIssued(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	n := newNotifier(t, rec)
	inv := testInvoice()
	req := issued(paymentrequest.TypeCardPayment, &inv.ID)

	err := n.InvoiceIssued(context.Background(), billing.Notice{
		Invoice: inv,
		Profile: &billing.Profile{UserID: inv.UserID, Name: "Jane Doe", Email: "jane@example.com"},
		Request: req,
		PDF:     []byte("%PDF-1.3"),
	})
	require.NoError(t, err)

	d := rec.last(t)
	assert.Equal(t, ledger.Subject{Kind: ledger.SubjectInvoice, ID: inv.ID}, d.Subject)
	assert.Equal(t, ledger.Ever, d.Policy)
	assert.Equal(t, inv.ID, *d.InvoiceID)
	assert.Equal(t, req.Request.ID, *d.PaymentRequestID)

	msg := d.Message
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Your LineHub invoice INV-202401-000001", msg.Subject)
	assert.Equal(t, notify.TemplateInvoiceIssued, msg.Tag)
	assert.Contains(t, msg.TextBody, "Dear Jane Doe,")
	assert.Contains(t, msg.TextBody, "Total due: £26.99")
	assert.Contains(t, msg.TextBody, "Due date: 29 January 2024")
	assert.Contains(t, msg.TextBody, req.Link)
	assert.Contains(t, msg.HTMLBody, "help@linehub.example")

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, email.Attachment{
		Name:        "INV-202401-000001.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.3"),
	}, msg.Attachments[0])
}

func TestPaymentReminderStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		template string
		subject  string
		text     string
	}{
		{reminder.TemplateUpcoming, "Invoice INV-202401-000001 is due soon", "is due on 29 January 2024"},
		{reminder.TemplateDue, "Invoice INV-202401-000001 is due today", "is due today"},
		{reminder.TemplateOverdue, "Invoice INV-202401-000001 is overdue", "is now overdue"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			n := newNotifier(t, rec)
			inv := testInvoice()

			res, err := n.PaymentReminder(context.Background(), reminder.Notice{
				Invoice:   inv,
				Profile:   &billing.Profile{Name: "Jane Doe", Email: "jane@example.com"},
				Milestone: reminder.Milestone{Template: tt.template},
				Request:   issued(paymentrequest.TypeCardPayment, &inv.ID),
			})
			require.NoError(t, err)
			assert.Equal(t, ledger.OutcomeSent, res.Outcome)

			msg := rec.last(t).Message
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Equal(t, tt.template, msg.Tag)
			assert.Contains(t, msg.TextBody, tt.text)
			assert.Contains(t, msg.TextBody, "Earlier payment links for this invoice no longer work")
		})
	}
}

func TestPaymentReceipt(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	n := newNotifier(t, rec)
	req := issued(paymentrequest.TypeCardPayment, nil).Request

	err := n.PaymentReceipt(context.Background(), checkout.ReceiptNotice{
		Request: req,
		Receipt: &checkout.Receipt{
			ID:                   uuid.New(),
			PaymentRequestID:     req.ID,
			Reference:            "RCP-20240115-AB12CD",
			Amount:               req.Amount,
			Currency:             "GBP",
			TransactionReference: "txn_01",
		},
	})
	require.NoError(t, err)

	d := rec.last(t)
	assert.Equal(t, ledger.Subject{Kind: ledger.SubjectPaymentRequest, ID: req.ID}, d.Subject)
	assert.Nil(t, d.InvoiceID)
	assert.Equal(t, "Payment received, receipt RCP-20240115-AB12CD", d.Message.Subject)
	assert.Contains(t, d.Message.TextBody, "We have received your payment of £26.99.")
	assert.Contains(t, d.Message.TextBody, "Transaction reference: txn_01")
}

func TestPaymentLink(t *testing.T) {
	t.Parallel()

	t.Run("card", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		iss := issued(paymentrequest.TypeCardPayment, nil)
		require.NoError(t, newNotifier(t, rec).PaymentLink(context.Background(), iss))

		msg := rec.last(t).Message
		assert.Equal(t, notify.TemplatePaymentLinkCard, msg.Tag)
		assert.Equal(t, "Payment request from LineHub", msg.Subject)
		assert.Contains(t, msg.TextBody, "A payment of £26.99 has been requested.")
		assert.Contains(t, msg.TextBody, "expires on 22 January 2024")
		assert.Contains(t, msg.HTMLBody, "Broadband installation")
	})

	t.Run("direct debit", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		iss := issued(paymentrequest.TypeDDSetup, nil)
		iss.Link = "https://portal.example.com/dd/setup?token=tok"
		require.NoError(t, newNotifier(t, rec).PaymentLink(context.Background(), iss))

		msg := rec.last(t).Message
		assert.Equal(t, notify.TemplatePaymentLinkDD, msg.Tag)
		assert.Equal(t, "Set up your Direct Debit with LineHub", msg.Subject)
		assert.Contains(t, msg.TextBody, "Set up your Direct Debit here: https://portal.example.com/dd/setup?token=tok")
		assert.NotContains(t, msg.TextBody, "£")
	})
}

func testMandate() *mandate.Mandate {
	return &mandate.Mandate{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		PaymentRequestID:    uuid.New(),
		Status:              mandate.StatusPending,
		Reference:           "DD-20250310-A1B2C3",
		CustomerName:        "Jane Doe",
		CustomerEmail:       "jane@example.com",
		SortCodeMasked:      "**-**-56",
		AccountNumberMasked: "****5678",
	}
}

func TestMandateReceived(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := testMandate()
	require.NoError(t, newNotifier(t, rec).MandateReceived(context.Background(), m))

	d := rec.last(t)
	assert.Equal(t, notify.TemplateMandateReceived, d.Message.Tag)
	assert.Equal(t, m.ID, *d.MandateID)
	assert.Contains(t, d.Message.TextBody, "DD-20250310-A1B2C3 for account ****5678, sort code **-**-56")
	assert.NotContains(t, d.Message.TextBody, "12345678")
}

func TestMandateStatusChanged(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := testMandate()
	m.Status = mandate.StatusSubmittedToProvider
	require.NoError(t, newNotifier(t, rec).MandateStatusChanged(context.Background(), m, mandate.StatusVerified))

	d := rec.last(t)
	assert.Equal(t, "dd_status_submitted_to_provider", d.Message.Tag)
	assert.Equal(t, "Your Direct Debit is submitted to your bank", d.Message.Subject)
	assert.Equal(t, ledger.Within(notify.DefaultStatusWindow), d.Policy)
	assert.Equal(t, "verified", d.Metadata["from"])
	assert.Contains(t, d.Message.HTMLBody, "has been sent to your bank for approval")
}

func TestSenderErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("ledger unavailable")
	n := newNotifier(t, &recorder{err: boom})
	err := n.MandateReceived(context.Background(), testMandate())
	assert.ErrorIs(t, err, boom)
}

func TestSkippedIsNotAnError(t *testing.T) {
	t.Parallel()

	n := newNotifier(t, &recorder{outcome: ledger.OutcomeSkipped})
	assert.NoError(t, n.MandateReceived(context.Background(), testMandate()))
}

type mailbox struct {
	mu   sync.Mutex
	sent int
}

func (m *mailbox) Send(context.Context, email.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return "msg", nil
}

func TestStatusEmailsThroughLedger(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 10, 5, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	box := &mailbox{}
	store := memstore.New()
	n := newNotifier(t, ledger.New(store, box, ledger.WithClock(clock)))
	ctx := context.Background()

	m := testMandate()
	m.Status = mandate.StatusActive
	require.NoError(t, n.MandateStatusChanged(ctx, m, mandate.StatusSubmittedToProvider))
	require.NoError(t, n.MandateStatusChanged(ctx, m, mandate.StatusSubmittedToProvider))
	assert.Equal(t, 1, box.sent, "same status within the window is sent once")

	m.Status = mandate.StatusCancelled
	require.NoError(t, n.MandateStatusChanged(ctx, m, mandate.StatusActive))
	assert.Equal(t, 2, box.sent, "a different status is a different template")

	require.NoError(t, n.MandateReceived(ctx, m))
	require.NoError(t, n.MandateReceived(ctx, m))
	assert.Equal(t, 3, box.sent)
	assert.Len(t, store.LedgerEntries(), 3)
}
