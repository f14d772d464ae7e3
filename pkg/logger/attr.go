package logger

import (
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Errors groups the non-nil errors under "errors". Returns an empty Attr when
// every error is nil.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// id builds an attribute for an identifier, skipping nil and empty values so
// optional IDs can be passed without branching at the call site.
func id(key string, v any) slog.Attr {
	switch val := v.(type) {
	case nil:
		return slog.Attr{}
	case *uuid.UUID:
		if val == nil {
			return slog.Attr{}
		}
		return slog.String(key, val.String())
	case string:
		if val == "" {
			return slog.Attr{}
		}
		return slog.String(key, val)
	case interface{ String() string }:
		return slog.String(key, val.String())
	default:
		return slog.Any(key, v)
	}
}

func UserID(v any) slog.Attr { return id("user_id", v) }

func RequestID(v any) slog.Attr { return id("request_id", v) }

func InvoiceID(v any) slog.Attr { return id("invoice_id", v) }

func PaymentRequestID(v any) slog.Attr { return id("payment_request_id", v) }

func MandateID(v any) slog.Attr { return id("mandate_id", v) }

// MessageID records a provider message identifier, e.g. the one returned by
// the email transport.
func MessageID(v any) slog.Attr { return id("message_id", v) }

// Template records the communication template name.
func Template(name string) slog.Attr {
	return slog.String("template", name)
}

// Provider records the external provider name (payment or email).
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// Duration records a duration under "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
