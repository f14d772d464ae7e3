package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/linehub/billing/svc/billing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTotals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                 string
		prices               []decimal.Decimal
		vat                  bool
		rate                 decimal.Decimal
		subtotal, tax, total string
	}{
		{"no vat", []decimal.Decimal{dec("26.99")}, false, dec("20"), "26.99", "0", "26.99"},
		{"vat 20%", []decimal.Decimal{dec("26.99"), dec("10.00")}, true, dec("20"), "36.99", "7.4", "44.39"},
		{"vat rounds to pence", []decimal.Decimal{dec("9.99")}, true, dec("17.5"), "9.99", "1.75", "11.74"},
		{"vat enabled at zero rate", []decimal.Decimal{dec("5")}, true, decimal.Zero, "5", "0", "5"},
		{"empty", nil, true, dec("20"), "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			subtotal, tax, total := billing.Totals(tt.prices, tt.vat, tt.rate)
			assert.True(t, dec(tt.subtotal).Equal(subtotal), "subtotal %s", subtotal)
			assert.True(t, dec(tt.tax).Equal(tax), "vat %s", tax)
			assert.True(t, dec(tt.total).Equal(total), "total %s", total)
		})
	}
}

func TestFormatInvoiceNumber(t *testing.T) {
	t.Parallel()

	issued := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, "202401", billing.SequenceKey(issued))
	assert.Equal(t, "INV-202401-000042", billing.FormatInvoiceNumber(issued, 42))
}

func TestInvoiceTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, billing.InvoiceTransitions.Allowed(billing.InvoiceDraft, billing.InvoiceSent))
	assert.True(t, billing.InvoiceTransitions.Allowed(billing.InvoiceOverdue, billing.InvoicePaid))
	assert.False(t, billing.InvoiceTransitions.Allowed(billing.InvoicePaid, billing.InvoiceOverdue))
	assert.False(t, billing.InvoiceTransitions.Allowed(billing.InvoiceCancelled, billing.InvoicePaid))
	assert.True(t, billing.InvoiceTransitions.IsTerminal(billing.InvoicePaid))
}
