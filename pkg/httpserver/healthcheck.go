package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/linehub/billing/pkg/logger"
)

// Check is a named readiness probe, e.g. a database ping.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// HealthCheckHandler runs every check under a short timeout and reports
// {"status":"ok"|"unavailable","checks":{name:"ok"|"error"}}. With no checks
// it acts as a liveness probe.
func HealthCheckHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				results[c.Name] = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			results[c.Name] = "ok"
		}

		body := map[string]any{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "unavailable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
