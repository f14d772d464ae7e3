package checkout

import (
	"log/slog"
	"time"

	"github.com/linehub/billing/pkg/audit"
)

type Option func(*Bridge)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

func WithAuditLogger(a *audit.Logger) Option {
	return func(b *Bridge) {
		if a != nil {
			b.audit = a
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(b *Bridge) {
		b.notifier = n
	}
}

// WithReturnURLSecret signs return URLs; VerifyOutcome then rejects any
// outcome without a matching signature.
func WithReturnURLSecret(secret []byte) Option {
	return func(b *Bridge) {
		b.returnSecret = secret
	}
}

// WithAllowedReturnHosts restricts return URLs to the given hosts.
func WithAllowedReturnHosts(hosts ...string) Option {
	return func(b *Bridge) {
		b.allowedHosts = hosts
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}
