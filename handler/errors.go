package handler

import (
	"errors"
	"net/http"
)

var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with a status code, a stable machine-readable code
// and a message that is safe to show to the customer.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string {
	return e.Key
}

func NewHTTPError(code int, key, message string) HTTPError {
	return HTTPError{Code: code, Key: key, Message: message}
}

var (
	ErrBadRequest         = HTTPError{Code: http.StatusBadRequest, Key: "bad_request", Message: "The request could not be understood."}
	ErrUnauthorized       = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized", Message: "Unauthorized."}
	ErrNotFound           = HTTPError{Code: http.StatusNotFound, Key: "not_found", Message: "Not found."}
	ErrMethodNotAllowed   = HTTPError{Code: http.StatusMethodNotAllowed, Key: "method_not_allowed", Message: "Method not allowed."}
	ErrInternalServer     = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error", Message: "An error occurred processing your request."}
	ErrServiceUnavailable = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable", Message: "Service temporarily unavailable."}
)
