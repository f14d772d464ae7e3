// Package secrets seals small sensitive records, such as bank account details,
// with AES-256-GCM under a key derived from an application master key and the
// record's subject (typically the owning customer ID).
//
// Sealed values are self-describing text: a version prefix followed by the
// base64 encoding of nonce || ciphertext || tag. The subject is also bound as
// additional authenticated data, so a value copied onto another customer's
// row will not open.
//
//	box, err := secrets.NewBox(masterKey, "bank-details")
//	sealed, err := box.Seal(customerID.String(), payload)
//	payload, err = box.Open(customerID.String(), sealed)
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const version = "v1"

// Box seals and opens values for one purpose. It is safe for concurrent use.
type Box struct {
	master []byte
	info   string
}

// NewBox creates a Box. purpose separates key domains, so a key derived for
// one purpose never decrypts another's data.
func NewBox(masterKey []byte, purpose string) (*Box, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKey
	}
	m := make([]byte, KeySize)
	copy(m, masterKey)
	return &Box{master: m, info: "linehub-" + purpose + "-" + version}, nil
}

// MustNewBox is NewBox that panics on an invalid key.
func MustNewBox(masterKey []byte, purpose string) *Box {
	b, err := NewBox(masterKey, purpose)
	if err != nil {
		panic(err)
	}
	return b
}

// Seal encrypts data for subject.
func (b *Box) Seal(subject string, data []byte) (string, error) {
	aead, err := b.aead(subject)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	sealed := aead.Seal(nonce, nonce, data, []byte(subject))
	return version + "." + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same subject.
func (b *Box) Open(subject, sealed string) ([]byte, error) {
	ver, payload, ok := strings.Cut(sealed, ".")
	if !ok || ver != version {
		return nil, fmt.Errorf("%w: unknown version", ErrInvalidCiphertext)
	}
	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Join(ErrInvalidCiphertext, err)
	}

	aead, err := b.aead(subject)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	n := aead.NonceSize()
	if len(raw) < n+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	plain, err := aead.Open(nil, raw[:n], raw[n:], []byte(subject))
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	return plain, nil
}

func (b *Box) aead(subject string) (cipher.AEAD, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}
	key, err := deriveKey(b.master, subject, b.info)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
