package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/logger"
)

type ctxKey struct{}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")

		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("production environment adds service attrs", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithEnvironment("prod", "billing"))
		log.Debug("dropped")
		log.Info("kept")

		entry := decode(t, buf)
		assert.Equal(t, "billing", entry["service"])
		assert.Equal(t, "production", entry["env"])
		assert.Equal(t, "kept", entry["msg"])
	})

	t.Run("development environment uses text", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithEnvironment("", "billing"))
		log.Debug("visible")

		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "env=development")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestContextExtraction(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextValue("request_id", ctxKey{}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	log.InfoContext(ctx, "with request")

	entry := decode(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	assert.Equal(t, slog.String("invoice_id", id.String()), logger.InvoiceID(id))
	assert.Equal(t, slog.Attr{}, logger.UserID(nil))
	assert.Equal(t, slog.Attr{}, logger.MandateID(""))
	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)
	assert.Equal(t, slog.Attr{}, logger.Errors(nil, nil))
	assert.Equal(t, "errors", logger.Errors(nil, errors.New("x")).Key)
	assert.Equal(t, slog.String("template", "invoice_issued"), logger.Template("invoice_issued"))
}
