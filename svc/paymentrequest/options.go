package paymentrequest

import (
	"log/slog"
	"strings"
	"time"

	"github.com/linehub/billing/pkg/audit"
)

// DefaultTTL is how long a link stays valid when neither the service nor the
// request sets one.
const DefaultTTL = 7 * 24 * time.Hour

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAuditLogger records opened and cancelled events.
func WithAuditLogger(a *audit.Logger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithLinkNotifier sets the notifier used by Request to deliver new links.
func WithLinkNotifier(n LinkNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPublicURL sets the portal origin used to build links, e.g.
// https://portal.example.com.
func WithPublicURL(base string) Option {
	return func(s *Service) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
