// Package payments mounts the customer payment pages, the portal function
// endpoint, the scheduled job triggers and the admin and webhook routes.
package payments

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/linehub/billing/handler"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/ratelimiter"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/reminder"
)

// Requests is the payment request service as seen by the HTTP layer.
type Requests interface {
	Validate(ctx context.Context, raw string, typ paymentrequest.Type) (*paymentrequest.PaymentRequest, error)
	Request(ctx context.Context, p paymentrequest.CreateParams) (*paymentrequest.Issued, error)
}

type Checkout interface {
	CreateSession(ctx context.Context, rawToken, returnURL string) (*checkout.Session, error)
	VerifyOutcome(ctx context.Context, p checkout.VerifyParams) (*checkout.Result, error)
	HandleProviderEvent(ctx context.Context, ev checkout.ProviderEvent) error
}

type Mandates interface {
	Submit(ctx context.Context, rawToken string, d mandate.Data, c mandate.Consent) (*mandate.Mandate, error)
	Get(ctx context.Context, id uuid.UUID) (*mandate.Mandate, error)
	Transition(ctx context.Context, id uuid.UUID, to mandate.Status, actor string) (*mandate.Mandate, error)
	RevealBankDetails(ctx context.Context, id uuid.UUID, actor string) (*mandate.BankDetails, error)
}

type InvoiceRunner interface {
	Run(ctx context.Context, today time.Time) (*billing.RunSummary, error)
}

type ReminderRunner interface {
	Run(ctx context.Context, today time.Time) (*reminder.Summary, error)
}

// WebhookParser verifies and decodes a provider notification.
type WebhookParser interface {
	ParseWebhook(r *http.Request) (*checkout.ProviderEvent, error)
}

// Config holds the settings the routes need.
type Config struct {
	// PublicAppURL is where provider returns are redirected after verification.
	PublicAppURL string `env:"PUBLIC_APP_URL,required"`
	CronSecret   string `env:"CRON_SECRET"`
	AdminSecret  string `env:"ADMIN_SECRET"`
}

type Module struct {
	cfg       Config
	requests  Requests
	checkout  Checkout
	mandates  Mandates
	invoices  InvoiceRunner
	reminders ReminderRunner
	webhooks  WebhookParser
	limiter   ratelimiter.Limiter
	log       *slog.Logger
	errors    handler.ErrorHandler[handler.Context]
	now       func() time.Time
}

type Option func(*Module)

func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.log = l
		}
	}
}

// WithWebhooks mounts POST /webhooks/paddle for p.
func WithWebhooks(p WebhookParser) Option {
	return func(m *Module) {
		m.webhooks = p
	}
}

// WithRateLimit throttles the public link endpoints per client IP.
func WithRateLimit(l ratelimiter.Limiter) Option {
	return func(m *Module) {
		m.limiter = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates the module. Panics if a service is nil.
func New(cfg Config, requests Requests, co Checkout, mandates Mandates, invoices InvoiceRunner, reminders ReminderRunner, opts ...Option) *Module {
	if requests == nil || co == nil || mandates == nil || invoices == nil || reminders == nil {
		panic("payments: requests, checkout, mandates, invoices and reminders are required")
	}

	m := &Module{
		cfg:       cfg,
		requests:  requests,
		checkout:  co,
		mandates:  mandates,
		invoices:  invoices,
		reminders: reminders,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("payments"))
	m.errors = handler.NewErrorHandler(m.log, Classify)
	return m
}

// Router returns the module routes, meant to be mounted at the root.
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if m.limiter != nil {
			r.Use(ratelimiter.Middleware(m.limiter, clientKey, m.tooManyRequests, m.rateLimitError))
		}
		r.Get("/pay", wrap(m, m.pay))
		r.Get("/dd/setup", wrap(m, m.ddSetup))
		r.Post("/functions/payment-request", wrap(m, m.function))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Use(requireSecret(CronSecretHeader, m.cfg.CronSecret, m.errors))
		r.Post("/generate-invoices", wrap(m, m.generateInvoices))
		r.Post("/send-reminders", wrap(m, m.sendReminders))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireSecret(AdminSecretHeader, m.cfg.AdminSecret, m.errors))
		r.Post("/payment-requests", wrap(m, m.adminCreateRequest))
		r.Get("/mandates/{id}", wrap(m, m.adminGetMandate))
		r.Post("/mandates/{id}/status", wrap(m, m.adminTransitionMandate))
		r.Get("/mandates/{id}/bank-details", wrap(m, m.adminRevealBankDetails))
	})

	if m.webhooks != nil {
		r.Post("/webhooks/paddle", handler.Wrap(m.webhook,
			handler.WithErrorHandler[handler.Context, struct{}](m.errors),
		))
	}
	return r
}
