package billing

import "time"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonth moves t one calendar month forward, clamping the day to the
// length of the target month (31 Jan -> 28/29 Feb).
func AddMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PeriodEnd is the last day of the period starting at start: one month
// later minus a day, whatever the billing mode.
func PeriodEnd(start time.Time) time.Time {
	return AddMonth(Day(start)).AddDate(0, 0, -1)
}

// DueDate is start plus the payment terms.
func DueDate(start time.Time, termsDays int) time.Time {
	return Day(start).AddDate(0, 0, termsDays)
}

// NextInvoiceDate returns the date after the one in s. Fixed-day billing
// snaps to the billing day of the following month; anniversary billing adds
// one calendar month to the current date, never to today. The result is
// always later than s.NextInvoiceDate.
func NextInvoiceDate(s Settings) time.Time {
	current := Day(s.NextInvoiceDate)

	if s.Mode == ModeFixedDay {
		day := min(max(s.BillingDay, 1), MaxBillingDay)
		return time.Date(current.Year(), current.Month()+1, day, 0, 0, 0, 0, time.UTC)
	}
	return AddMonth(current)
}
