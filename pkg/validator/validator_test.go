package validator_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "Jane"),
			validator.Digits("sort_code", "123456", 6),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "  "),
			validator.Digits("sort_code", "12-34-56", 6),
			validator.Digits("account_number", "1234567", 8),
			validator.True("consent", false, "consent is required"),
		)
		require.Error(t, err)
		assert.True(t, validator.IsValidationError(err))
		assert.True(t, errors.Is(err, validator.ErrValidationFailed))

		errs := validator.ExtractValidationErrors(err)
		assert.Equal(t, []string{"name", "sort_code", "account_number", "consent"}, errs.Fields())
		assert.Equal(t, []string{"consent is required"}, errs.Get("consent"))
		assert.Contains(t, errs.Map(), "sort_code")
		assert.Contains(t, err.Error(), "account_number: must be exactly 8 digits")
	})

	t.Run("extract from unrelated error", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, validator.ExtractValidationErrors(errors.New("boom")))
		assert.Nil(t, validator.ExtractValidationErrors(nil))
		assert.False(t, validator.IsValidationError(nil))
	})
}

func TestDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		n     int
		ok    bool
	}{
		{"12345678", 8, true},
		{"1234567", 8, false},
		{"1234567a", 8, false},
		{"", 6, false},
		{"１２３４５６", 6, false},
	}
	for _, tt := range tests {
		err := validator.Apply(validator.Digits("f", tt.value, tt.n))
		assert.Equal(t, tt.ok, err == nil, "value %q", tt.value)
	}
}

func TestStringRules(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(validator.MaxLenString("name", "Zoë", 3)))
	assert.Error(t, validator.Apply(validator.MaxLenString("name", "Zoëy", 3)))

	re := regexp.MustCompile(`^[A-Z]+$`)
	assert.NoError(t, validator.Apply(validator.MatchesRegex("code", "ABC", re, "upper only")))
	assert.Error(t, validator.Apply(validator.MatchesRegex("code", "abc", re, "upper only")))

	type mode string
	assert.NoError(t, validator.Apply(validator.InList("mode", mode("card"), "card", "direct_debit")))
	err := validator.Apply(validator.InList("mode", mode("cash"), "card", "direct_debit"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of: card, direct_debit")
}

func TestFormatRules(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"jane@example.com", "a.b+c@mail.example.co.uk"} {
		assert.NoError(t, validator.Apply(validator.ValidEmail("email", v)), v)
	}
	for _, v := range []string{"", "jane", "jane@localhost", "Jane <jane@example.com>", "jane@example..com"} {
		assert.Error(t, validator.Apply(validator.ValidEmail("email", v)), v)
	}

	assert.NoError(t, validator.Apply(validator.ValidURL("url", "https://pay.example.com/x")))
	assert.Error(t, validator.Apply(validator.ValidURL("url", "ftp://example.com")))
	assert.Error(t, validator.Apply(validator.ValidURL("url", "/relative")))
}

func TestMoneyRules(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(validator.PositiveDecimal("amount", decimal.RequireFromString("0.01"))))
	assert.Error(t, validator.Apply(validator.PositiveDecimal("amount", decimal.Zero)))
	assert.Error(t, validator.Apply(validator.PositiveDecimal("amount", decimal.RequireFromString("-5"))))

	assert.NoError(t, validator.Apply(validator.MaxDecimalPlaces("amount", decimal.RequireFromString("12.50"), 2)))
	assert.Error(t, validator.Apply(validator.MaxDecimalPlaces("amount", decimal.RequireFromString("12.505"), 2)))

	assert.NoError(t, validator.Apply(validator.ValidCurrencyCode("currency", "GBP")))
	assert.NoError(t, validator.Apply(validator.ValidCurrencyCode("currency", "EUR")))
	assert.Error(t, validator.Apply(validator.ValidCurrencyCode("currency", "gbp")))
	assert.Error(t, validator.Apply(validator.ValidCurrencyCode("currency", "XYZ")))
	assert.Error(t, validator.Apply(validator.ValidCurrencyCode("currency", "")))
}
