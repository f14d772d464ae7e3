package payments

import (
	"time"

	"github.com/linehub/billing/handler"
	"github.com/linehub/billing/svc/billing"
)

type jobQuery struct {
	// Date overrides the run date, YYYY-MM-DD. Defaults to today in UTC.
	Date string `query:"date" json:"-"`
}

func (m *Module) runDate(q jobQuery) (time.Time, error) {
	if q.Date == "" {
		return billing.Day(m.now()), nil
	}
	d, err := time.Parse(time.DateOnly, q.Date)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func (m *Module) generateInvoices(ctx handler.Context, q jobQuery) handler.Response {
	day, err := m.runDate(q)
	if err != nil {
		return handler.Error(err)
	}
	summary, err := m.invoices.Run(ctx, day)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(summary)
}

func (m *Module) sendReminders(ctx handler.Context, q jobQuery) handler.Response {
	day, err := m.runDate(q)
	if err != nil {
		return handler.Error(err)
	}
	summary, err := m.reminders.Run(ctx, day)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(summary)
}
