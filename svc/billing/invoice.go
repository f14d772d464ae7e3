package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals sums the service prices and applies VAT at ratePercent, rounding
// VAT to pence.
func Totals(prices []decimal.Decimal, vatEnabled bool, ratePercent decimal.Decimal) (subtotal, vat, total decimal.Decimal) {
	subtotal = decimal.Sum(decimal.Zero, prices...)
	vat = decimal.Zero
	if vatEnabled && ratePercent.IsPositive() {
		vat = subtotal.Mul(ratePercent).Div(hundred).Round(2)
	}
	return subtotal, vat, subtotal.Add(vat)
}

// SequenceKey scopes invoice numbering to the issue month, e.g. "202401".
func SequenceKey(issued time.Time) string {
	return issued.UTC().Format("200601")
}

// FormatInvoiceNumber renders INV-YYYYMM-NNNNNN.
func FormatInvoiceNumber(issued time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", SequenceKey(issued), seq)
}
