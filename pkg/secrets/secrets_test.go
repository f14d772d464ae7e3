package secrets_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/secrets"
)

func newBox(t *testing.T, purpose string) (*secrets.Box, []byte) {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	return secrets.MustNewBox(key, purpose), key
}

func TestBoxRoundTrip(t *testing.T) {
	t.Parallel()

	box, _ := newBox(t, "bank-details")
	payload := []byte(`{"sort_code":"123456","account_number":"12345678"}`)

	sealed, err := box.Seal("customer-1", payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1."))
	assert.NotContains(t, sealed, "12345678")

	opened, err := box.Open("customer-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)

	again, err := box.Seal("customer-1", payload)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestBoxRejectsWrongContext(t *testing.T) {
	t.Parallel()

	box, key := newBox(t, "bank-details")
	sealed, err := box.Seal("customer-1", []byte("secret"))
	require.NoError(t, err)

	_, err = box.Open("customer-2", sealed)
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)

	other := secrets.MustNewBox(key, "other-purpose")
	_, err = other.Open("customer-1", sealed)
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)

	_, err = box.Open("customer-1", "v2."+strings.TrimPrefix(sealed, "v1."))
	assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)

	_, err = box.Open("customer-1", "v1.AAAA")
	assert.ErrorIs(t, err, secrets.ErrInvalidCiphertext)

	_, err = box.Seal("", []byte("x"))
	assert.ErrorIs(t, err, secrets.ErrEmptySubject)
}

func TestNewBoxValidatesKey(t *testing.T) {
	t.Parallel()

	_, err := secrets.NewBox([]byte("short"), "x")
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)
	assert.Panics(t, func() { secrets.MustNewBox(nil, "x") })
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		parsed, err := secrets.ParseKey(enc.EncodeToString(key))
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	}

	_, err = secrets.ParseKey(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)

	_, err = secrets.ParseKey("!!!")
	assert.ErrorIs(t, err, secrets.ErrInvalidKey)
}
