package payments

import (
	"github.com/linehub/billing/handler"
)

type ack struct {
	Success bool `json:"success"`
}

// webhook verifies a provider notification and settles it. Unknown or
// irrelevant events are acknowledged so the provider stops retrying.
func (m *Module) webhook(ctx handler.Context, _ struct{}) handler.Response {
	ev, err := m.webhooks.ParseWebhook(ctx.Request())
	if err != nil {
		return handler.Error(err)
	}
	if ev == nil {
		return handler.JSON(ack{Success: true})
	}
	if err := m.checkout.HandleProviderEvent(ctx, *ev); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(ack{Success: true})
}
