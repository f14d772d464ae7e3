package mandate_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/linehub/billing/svc/mandate"
)

func decimalOne() decimal.Decimal {
	return decimal.NewFromInt(1)
}

func TestMasks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "****5678", mandate.MaskAccountNumber("12345678"))
	assert.Equal(t, "***", mandate.MaskAccountNumber("123"))
	assert.Equal(t, "**-**-56", mandate.MaskSortCode("123456"))
	assert.Equal(t, "**-**-**", mandate.MaskSortCode(""))
}

func TestTransitionsTable(t *testing.T) {
	t.Parallel()

	assert.True(t, mandate.Transitions.Allowed(mandate.StatusPending, mandate.StatusVerified))
	assert.True(t, mandate.Transitions.Allowed(mandate.StatusActive, mandate.StatusCancelled))
	assert.True(t, mandate.Transitions.Allowed(mandate.StatusPending, mandate.StatusFailed))
	assert.False(t, mandate.Transitions.Allowed(mandate.StatusVerified, mandate.StatusPending))
	assert.True(t, mandate.Transitions.IsTerminal(mandate.StatusCancelled))
	assert.True(t, mandate.Transitions.IsTerminal(mandate.StatusFailed))
	assert.False(t, mandate.Transitions.IsTerminal(mandate.StatusActive))
}
