package payments

import (
	"crypto/subtle"
	"net/http"

	"github.com/linehub/billing/handler"
	"github.com/linehub/billing/pkg/binder"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/ratelimiter"
	"github.com/linehub/billing/pkg/reqmeta"
)

const (
	CronSecretHeader  = "X-Cron-Secret"
	AdminSecretHeader = "X-Admin-Secret"

	// AdminActorHeader names the operator in audit events. Defaults to "admin".
	AdminActorHeader = "X-Admin-Actor"
)

// requireSecret rejects requests whose header does not match secret. An
// empty secret locks the routes.
func requireSecret(header, secret string, onError handler.ErrorHandler[handler.Context]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secretMatches(r.Header.Get(header), secret) {
				onError(handler.NewContext(w, r), handler.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secretMatches(got, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func actor(r *http.Request) string {
	if a := r.Header.Get(AdminActorHeader); a != "" {
		return a
	}
	return "admin"
}

// wrap binds path, query and JSON body into R and routes errors through the
// module error handler.
func wrap[R any](m *Module, h handler.HandlerFunc[handler.Context, R]) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binder.Path(), binder.Query(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, R](m.errors),
	)
}

func clientKey(r *http.Request) string {
	if ip := reqmeta.FromContext(r.Context()).IP; ip != "" {
		return "link:" + ip
	}
	if ip := reqmeta.ClientIP(r); ip != "" {
		return "link:" + ip
	}
	return ""
}

func (m *Module) tooManyRequests(w http.ResponseWriter, r *http.Request, _ *ratelimiter.Result) {
	m.errors(handler.NewContext(w, r), ErrTooManyRequests)
}

func (m *Module) rateLimitError(r *http.Request, err error) {
	m.log.WarnContext(r.Context(), "rate limit check failed, allowing request", logger.Error(err))
}
