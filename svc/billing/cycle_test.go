package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linehub/billing/svc/billing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want time.Time
	}{
		{date(2024, 1, 15), date(2024, 2, 15)},
		{date(2024, 1, 31), date(2024, 2, 29)},
		{date(2023, 1, 31), date(2023, 2, 28)},
		{date(2024, 12, 10), date(2025, 1, 10)},
		{date(2024, 3, 31), date(2024, 4, 30)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, billing.AddMonth(tt.in), "AddMonth(%s)", tt.in.Format(time.DateOnly))
	}
}

func TestPeriodEnd(t *testing.T) {
	t.Parallel()

	assert.Equal(t, date(2024, 2, 14), billing.PeriodEnd(date(2024, 1, 15)))
	assert.Equal(t, date(2024, 1, 31), billing.PeriodEnd(date(2024, 1, 1)))
	assert.Equal(t, date(2024, 2, 28), billing.PeriodEnd(date(2024, 1, 31)))
}

func TestDueDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, date(2024, 1, 29), billing.DueDate(date(2024, 1, 15), 14))
	assert.Equal(t, date(2024, 1, 15), billing.DueDate(time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC), 0))
}

func TestNextInvoiceDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    billing.Settings
		want time.Time
	}{
		{
			name: "anniversary",
			s:    billing.Settings{Mode: billing.ModeAnniversary, NextInvoiceDate: date(2024, 1, 15)},
			want: date(2024, 2, 15),
		},
		{
			name: "anniversary clamps at month end",
			s:    billing.Settings{Mode: billing.ModeAnniversary, NextInvoiceDate: date(2024, 1, 31)},
			want: date(2024, 2, 29),
		},
		{
			name: "fixed day",
			s:    billing.Settings{Mode: billing.ModeFixedDay, BillingDay: 5, NextInvoiceDate: date(2024, 1, 5)},
			want: date(2024, 2, 5),
		},
		{
			name: "fixed day caps at 28",
			s:    billing.Settings{Mode: billing.ModeFixedDay, BillingDay: 31, NextInvoiceDate: date(2024, 1, 28)},
			want: date(2024, 2, 28),
		},
		{
			name: "fixed day snaps off-day dates",
			s:    billing.Settings{Mode: billing.ModeFixedDay, BillingDay: 1, NextInvoiceDate: date(2024, 1, 17)},
			want: date(2024, 2, 1),
		},
		{
			name: "fixed day rolls the year",
			s:    billing.Settings{Mode: billing.ModeFixedDay, BillingDay: 10, NextInvoiceDate: date(2024, 12, 10)},
			want: date(2025, 1, 10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := billing.NextInvoiceDate(tt.s)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(tt.s.NextInvoiceDate))
		})
	}
}

func TestNextInvoiceDateStrictlyIncreases(t *testing.T) {
	t.Parallel()

	for _, mode := range []billing.Mode{billing.ModeAnniversary, billing.ModeFixedDay} {
		s := billing.Settings{Mode: mode, BillingDay: 28, NextInvoiceDate: date(2024, 1, 31)}
		for range 36 {
			next := billing.NextInvoiceDate(s)
			assert.True(t, next.After(s.NextInvoiceDate), "%s: %s -> %s", mode, s.NextInvoiceDate, next)
			s.NextInvoiceDate = next
		}
	}
}
