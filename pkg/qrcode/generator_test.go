package qrcode_test

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/qrcode"
)

func TestPNG(t *testing.T) {
	t.Parallel()

	data, err := qrcode.PNG("https://portal.example.com/pay?token=abc", qrcode.WithSize(128))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	hi, err := qrcode.PNG("https://portal.example.com/pay?token=abc", qrcode.WithHighRecovery())
	require.NoError(t, err)
	img, err = png.Decode(bytes.NewReader(hi))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestPNGErrors(t *testing.T) {
	t.Parallel()

	_, err := qrcode.PNG("   ")
	assert.ErrorIs(t, err, qrcode.ErrEmptyContent)

	_, err = qrcode.PNG(strings.Repeat("x", 8000))
	assert.ErrorIs(t, err, qrcode.ErrorFailedToGenerateQRCode)
}
