// Package notify renders customer emails and sends them through the
// communications ledger. It implements the notifier interfaces of the
// billing, checkout, mandate, reminder and paymentrequest services.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/svc/ledger"
)

//go:embed templates/*.html templates/*.txt
var templatesFS embed.FS

// Template names recorded in the ledger.
const (
	TemplateInvoiceIssued     = "invoice_issued"
	TemplatePaymentReceipt    = "payment_receipt"
	TemplatePaymentLinkCard   = "payment_link_card"
	TemplatePaymentLinkDD     = "payment_link_dd"
	TemplateMandateReceived   = "dd_mandate_received"
	TemplateMandateStatusBase = "dd_status_"
)

// DefaultStatusWindow suppresses repeated mandate status emails for the
// same status within this period.
const DefaultStatusWindow = time.Hour

var ErrFailedToRender = errors.New("failed to render email")

// Sender is the part of the ledger the notifier needs.
type Sender interface {
	Send(ctx context.Context, d ledger.Dispatch) (ledger.Result, error)
}

// Brand is the company identity shown in every email.
type Brand struct {
	CompanyName  string `env:"COMPANY_NAME" envDefault:"LineHub"`
	SupportEmail string `env:"SUPPORT_EMAIL" envDefault:"support@linehub.example"`
}

type Notifier struct {
	sender       Sender
	brand        Brand
	html         *htmltemplate.Template
	text         *texttemplate.Template
	statusWindow time.Duration
	log          *slog.Logger
}

type Option func(*Notifier)

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.log = l
		}
	}
}

// WithStatusWindow overrides DefaultStatusWindow.
func WithStatusWindow(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.statusWindow = d
		}
	}
}

var funcs = map[string]any{
	"money": func(amount decimal.Decimal, code string) string { return money.Format(amount, code) },
	"date":  func(t time.Time) string { return t.Format("2 January 2006") },
}

// New parses the embedded templates. Panics if sender is nil.
func New(sender Sender, brand Brand, opts ...Option) (*Notifier, error) {
	if sender == nil {
		panic("notify: sender is required")
	}

	html, err := htmltemplate.New("email").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, errors.Join(ErrFailedToRender, err)
	}
	text, err := texttemplate.New("email").Funcs(funcs).ParseFS(templatesFS, "templates/*.txt")
	if err != nil {
		return nil, errors.Join(ErrFailedToRender, err)
	}

	n := &Notifier{
		sender:       sender,
		brand:        brand,
		html:         html,
		text:         text,
		statusWindow: DefaultStatusWindow,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With(logger.Component("notify"))
	return n, nil
}

// view is the data every template receives. Unused fields stay zero.
type view struct {
	Brand       Brand
	Name        string
	Link        string
	Stage       string
	Status      string
	StatusLabel string
	DirectDebit bool
	Description string
	Invoice     any
	Request     any
	Receipt     any
	Mandate     any
}

func (n *Notifier) render(name string, v view) (html, text string, err error) {
	v.Brand = n.brand
	if v.Name == "" {
		v.Name = "customer"
	}

	var hb, tb bytes.Buffer
	if err := n.html.ExecuteTemplate(&hb, name, v); err != nil {
		return "", "", errors.Join(ErrFailedToRender, err)
	}
	if err := n.text.ExecuteTemplate(&tb, name, v); err != nil {
		return "", "", errors.Join(ErrFailedToRender, err)
	}
	return hb.String(), strings.TrimSpace(tb.String()), nil
}

// send dispatches through the ledger. A skipped dispatch is not an error.
func (n *Notifier) send(ctx context.Context, d ledger.Dispatch) error {
	_, err := n.dispatch(ctx, d)
	return err
}

func (n *Notifier) dispatch(ctx context.Context, d ledger.Dispatch) (ledger.Result, error) {
	res, err := n.sender.Send(ctx, d)
	if err != nil {
		return res, err
	}
	if res.Outcome == ledger.OutcomeSkipped {
		n.log.DebugContext(ctx, "email already sent",
			logger.Template(d.Message.Tag),
			slog.String("subject", d.Subject.String()),
		)
	}
	return res, nil
}

func ptr(id uuid.UUID) *uuid.UUID {
	return &id
}
