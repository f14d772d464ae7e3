// Package logger builds *slog.Logger instances for the billing service.
//
// New applies functional options (format, level, static attributes) and wraps
// the handler in a decorator that injects request-scoped values, such as the
// request ID, from the context passed to the *Context logging methods.
//
// The attribute helpers in attr.go keep key names consistent across packages:
//
//	log.InfoContext(ctx, "invoice created",
//		logger.UserID(settings.UserID),
//		logger.InvoiceID(inv.ID),
//		logger.Component("billing"),
//	)
package logger
