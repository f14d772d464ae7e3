package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const sigSize = 16

// Generate encodes payload as JSON and signs it with secret.
func Generate[T any](payload T, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, secret)), nil
}

// Parse verifies tok against secret and decodes its payload.
func Parse[T any](tok string, secret []byte) (T, error) {
	var payload T
	if len(secret) == 0 {
		return payload, ErrEmptySecret
	}

	encData, encSig, ok := strings.Cut(tok, ".")
	if !ok || encData == "" || encSig == "" {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(encData)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}

	if !hmac.Equal(sig, sign(data, secret)) {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	return payload, nil
}

func sign(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)[:sigSize]
}
