// Package money converts decimal amounts to provider minor units and formats
// them for customer-facing documents using the ISO 4217 tables from x/text.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrUnknownCurrency = errors.New("unknown currency code")
	ErrSubMinorAmount  = errors.New("amount is more precise than the currency minor unit")
)

// DefaultCurrency is used when a record carries no currency.
const DefaultCurrency = "GBP"

func unit(code string) (currency.Unit, error) {
	if code == "" {
		code = DefaultCurrency
	}
	u, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return currency.Unit{}, errors.Join(ErrUnknownCurrency, err)
	}
	return u, nil
}

// Scale returns the number of minor-unit digits for code (2 for GBP, 0 for JPY).
func Scale(code string) (int32, error) {
	u, err := unit(code)
	if err != nil {
		return 0, err
	}
	scale, _ := currency.Standard.Rounding(u)
	return int32(scale), nil
}

// Round rounds amount half away from zero to the currency scale.
func Round(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	scale, err := Scale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Round(scale), nil
}

// MinorUnits converts amount to integer minor units, e.g. 26.99 GBP -> 2699.
// Amounts finer than the minor unit are rejected rather than rounded.
func MinorUnits(amount decimal.Decimal, code string) (int64, error) {
	scale, err := Scale(code)
	if err != nil {
		return 0, err
	}
	shifted := amount.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrSubMinorAmount
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64, code string) (decimal.Decimal, error) {
	scale, err := Scale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -scale), nil
}

// Format renders amount with the narrow currency symbol for British English,
// e.g. "£26.99". Unknown currencies fall back to "26.99 XXX".
func Format(amount decimal.Decimal, code string) string {
	u, err := unit(code)
	if err != nil {
		return amount.StringFixed(2) + " " + code
	}
	scale, _ := currency.Standard.Rounding(u)
	symbol := message.NewPrinter(language.BritishEnglish).Sprint(currency.NarrowSymbol(u))

	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	return sign + symbol + amount.StringFixed(int32(scale))
}
