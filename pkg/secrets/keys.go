package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the master key length in bytes (AES-256).
const KeySize = 32

// GenerateKey returns a fresh random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a base64 (standard or URL, padded or not) master key, as
// stored in environment configuration.
func ParseKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(s); err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: not base64", ErrInvalidKey)
}

// deriveKey mixes the master key with a per-subject salt so that every
// subject's records are sealed under a distinct key. The caller zeroes the
// result when done.
func deriveKey(master []byte, subject, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, []byte(subject), []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
