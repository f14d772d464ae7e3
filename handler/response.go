package handler

import (
	"encoding/json"
	"net/http"
)

// Response renders itself to the client.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// ResponseFunc adapts a function to Response.
type ResponseFunc func(w http.ResponseWriter, r *http.Request) error

func (f ResponseFunc) Render(w http.ResponseWriter, r *http.Request) error { return f(w, r) }

type JSONOption func(status *int)

func WithJSONStatus(status int) JSONOption {
	return func(s *int) { *s = status }
}

// JSON encodes v with status 200 unless overridden. Bodies may describe
// payment state, so they are never cached.
func JSON(v any, opts ...JSONOption) Response {
	status := http.StatusOK
	for _, opt := range opts {
		opt(&status)
	}
	return ResponseFunc(func(w http.ResponseWriter, _ *http.Request) error {
		h := w.Header()
		h.Set("Content-Type", "application/json; charset=utf-8")
		h.Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		return json.NewEncoder(w).Encode(v)
	})
}

// Redirect sends a 303 See Other, so a provider POST-back lands as a GET.
func Redirect(url string) Response {
	return ResponseFunc(func(w http.ResponseWriter, r *http.Request) error {
		http.Redirect(w, r, url, http.StatusSeeOther)
		return nil
	})
}

// Empty is 204 No Content.
func Empty() Response {
	return ResponseFunc(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// errorResponse is never rendered; Wrap hands err to the ErrorHandler.
type errorResponse struct {
	err error
}

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error { return e.err }

func Error(err error) Response {
	return errorResponse{err: err}
}
