package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/validator"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details map[string][]string `json:"details,omitempty"`
}

// Classifier maps an application error to an HTTPError. It returns false
// for errors it does not recognise.
type Classifier func(err error) (HTTPError, bool)

// ErrorInfo is the outcome of classifying an error.
type ErrorInfo struct {
	Status   int
	Body     ErrorBody
	LogLevel slog.Level
}

// Classify runs the classifiers in order, then falls back to HTTPError,
// validation errors and finally a generic 500 whose message never leaks
// internal detail.
func Classify(err error, classifiers ...Classifier) ErrorInfo {
	info := ErrorInfo{Status: ErrInternalServer.Code, Body: ErrorBody{
		Error: ErrInternalServer.Message,
		Code:  ErrInternalServer.Key,
	}}

	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
		info.Status = http.StatusBadRequest
		info.Body = ErrorBody{Error: verrs.Error(), Code: "validation_error", Details: verrs.Map()}
	} else if he, ok := classify(err, classifiers); ok {
		info.Status = he.Code
		info.Body = ErrorBody{Error: he.Message, Code: he.Key}
	}

	info.LogLevel = slog.LevelError
	if info.Status < http.StatusInternalServerError {
		info.LogLevel = slog.LevelWarn
	}
	return info
}

func classify(err error, classifiers []Classifier) (HTTPError, bool) {
	for _, c := range classifiers {
		if he, ok := c(err); ok {
			return he, true
		}
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return HTTPError{}, false
}

// NewErrorHandler logs err with request metadata and writes an ErrorBody.
func NewErrorHandler(log *slog.Logger, classifiers ...Classifier) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		info := Classify(err, classifiers...)
		r := ctx.Request()

		log.LogAttrs(ctx, info.LogLevel, "request error",
			logger.Error(err),
			slog.Int("status_code", info.Status),
			slog.String("code", info.Body.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		w := ctx.ResponseWriter()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(info.Status)
		if encErr := json.NewEncoder(w).Encode(info.Body); encErr != nil {
			log.ErrorContext(ctx, "failed to write error response", logger.Error(encErr))
		}
	}
}
