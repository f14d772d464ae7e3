package token

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrSignatureInvalid = errors.New("signature mismatch")
	ErrEmptySecret      = errors.New("signing secret must not be empty")
)
