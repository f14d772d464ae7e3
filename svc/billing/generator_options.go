package billing

import (
	"log/slog"
	"time"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/lock"
)

const (
	DefaultConcurrency = 5
	DefaultItemTimeout = 2 * time.Minute
)

type GeneratorOption func(*Generator)

func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

func WithAuditLogger(a *audit.Logger) GeneratorOption {
	return func(g *Generator) {
		if a != nil {
			g.audit = a
		}
	}
}

// WithLocker sets the per-customer lock. Use a shared backend when several
// replicas run the job.
func WithLocker(l lock.Locker) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.locker = l
		}
	}
}

func WithNotifier(n Notifier) GeneratorOption {
	return func(g *Generator) {
		g.notifier = n
	}
}

func WithRenderer(r Renderer) GeneratorOption {
	return func(g *Generator) {
		g.renderer = r
	}
}

func WithArchiver(a Archiver) GeneratorOption {
	return func(g *Generator) {
		g.archiver = a
	}
}

// WithConcurrency bounds how many customers are billed at once.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithItemTimeout bounds the work for a single customer.
func WithItemTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.itemTimeout = d
		}
	}
}

func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}
