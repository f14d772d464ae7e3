// Package reqmeta captures per-request metadata (request ID, client IP and
// user agent) once in middleware so that services deep in the call chain can
// read it from context for logging, auditing and consent records.
package reqmeta

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request ID in both directions.
const Header = "X-Request-ID"

const (
	maxIDLength        = 128
	maxUserAgentLength = 512
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Meta is the metadata of a single inbound request.
type Meta struct {
	RequestID string
	IP        string
	UserAgent string
}

type contextKey struct{}

func WithContext(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// FromContext returns the stored Meta, or the zero value.
func FromContext(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(contextKey{}).(Meta)
	return m
}

// Middleware reuses a well-formed inbound X-Request-ID or generates one,
// echoes it on the response and stores Meta in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if len(id) == 0 || len(id) > maxIDLength || !validID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)

		ua := r.UserAgent()
		if len(ua) > maxUserAgentLength {
			ua = ua[:maxUserAgentLength]
		}

		m := Meta{RequestID: id, IP: ClientIP(r), UserAgent: ua}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), m)))
	})
}

// ClientIP resolves the caller address, preferring proxy headers in the
// order CF-Connecting-IP, DO-Connecting-IP, X-Forwarded-For (first valid
// entry), X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	for _, h := range []string{"CF-Connecting-IP", "DO-Connecting-IP"} {
		if ip := parseIP(r.Header.Get(h)); ip != "" {
			return ip
		}
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for ip := range strings.SplitSeq(forwarded, ",") {
			if parsed := parseIP(ip); parsed != "" {
				return parsed
			}
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// LoggerExtractor adds request_id to every record logged with a request context.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx).RequestID; id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}

// Extractors for audit.Logger options.

func RequestID(ctx context.Context) (string, bool) {
	v := FromContext(ctx).RequestID
	return v, v != ""
}

func IP(ctx context.Context) (string, bool) {
	v := FromContext(ctx).IP
	return v, v != ""
}

func UserAgent(ctx context.Context) (string, bool) {
	v := FromContext(ctx).UserAgent
	return v, v != ""
}
