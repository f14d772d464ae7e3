package validator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// PositiveDecimal validates that an amount is strictly greater than zero.
func PositiveDecimal(field string, value decimal.Decimal) Rule {
	return Rule{
		Check: func() bool {
			return value.IsPositive()
		},
		Error: newError(field, "must be greater than zero", "validation.positive", nil),
	}
}

// MaxDecimalPlaces rejects amounts with more fractional digits than places.
func MaxDecimalPlaces(field string, value decimal.Decimal, places int32) Rule {
	return Rule{
		Check: func() bool {
			return value.Equal(value.Truncate(places))
		},
		Error: newError(field,
			fmt.Sprintf("must have at most %d decimal places", places),
			"validation.decimal_places",
			map[string]any{"places": places},
		),
	}
}

// ValidCurrencyCode validates an upper-case ISO 4217 code against the
// x/text currency tables.
func ValidCurrencyCode(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if len(value) != 3 || strings.ToUpper(value) != value {
				return false
			}
			_, err := currency.ParseISO(value)
			return err == nil
		},
		Error: newError(field, "must be a valid ISO 4217 currency code", "validation.currency_code", nil),
	}
}
