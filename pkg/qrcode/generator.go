// Package qrcode renders payment links as PNG QR codes for embedding in
// invoice PDFs.
package qrcode

import (
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent             = errors.New("content cannot be empty")
	ErrorFailedToGenerateQRCode = errors.New("failed to generate QR code")
)

const defaultSize = 256

type options struct {
	size  int
	level skipqrcode.RecoveryLevel
}

type Option func(*options)

// WithSize sets the image width and height in pixels.
func WithSize(px int) Option {
	return func(o *options) {
		if px > 0 {
			o.size = px
		}
	}
}

// WithHighRecovery trades density for tolerance to print damage.
func WithHighRecovery() Option {
	return func(o *options) {
		o.level = skipqrcode.High
	}
}

// PNG encodes content as a square PNG image.
func PNG(content string, opts ...Option) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	o := options{size: defaultSize, level: skipqrcode.Medium}
	for _, opt := range opts {
		opt(&o)
	}

	png, err := skipqrcode.Encode(content, o.level, o.size)
	if err != nil {
		return nil, errors.Join(ErrorFailedToGenerateQRCode, err)
	}
	return png, nil
}
