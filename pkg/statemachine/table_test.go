package statemachine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/statemachine"
)

type status string

const (
	pending   status = "pending"
	verified  status = "verified"
	active    status = "active"
	cancelled status = "cancelled"
	failed    status = "failed"
)

func newTable() *statemachine.Table[status] {
	return statemachine.New(
		statemachine.Allow(pending, verified),
		statemachine.Allow(verified, active),
		statemachine.AllowFromAny([]status{pending, verified, active}, cancelled, failed),
	)
}

func TestTableAllowed(t *testing.T) {
	t.Parallel()

	tbl := newTable()
	assert.True(t, tbl.Allowed(pending, verified))
	assert.True(t, tbl.Allowed(active, cancelled))
	assert.False(t, tbl.Allowed(pending, active), "cannot skip a step")
	assert.False(t, tbl.Allowed(verified, pending), "cannot move backwards")
	assert.False(t, tbl.Allowed(cancelled, active))
}

func TestTableCheck(t *testing.T) {
	t.Parallel()

	tbl := newTable()
	require.NoError(t, tbl.Check(verified, active))

	err := tbl.Check(failed, active)
	require.Error(t, err)
	assert.True(t, errors.Is(err, statemachine.ErrInvalidTransition))
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))
	assert.Equal(t, "no transition available from state 'failed' to 'active'", err.Error())
}

func TestTableSourcesAndTargets(t *testing.T) {
	t.Parallel()

	tbl := newTable()
	assert.Equal(t, []status{pending, verified, active}, tbl.Sources(cancelled))
	assert.Equal(t, []status{verified}, tbl.Sources(active))
	assert.Empty(t, tbl.Sources(pending))
	assert.ElementsMatch(t, []status{verified, cancelled, failed}, tbl.Targets(pending))

	assert.True(t, tbl.IsTerminal(cancelled))
	assert.True(t, tbl.IsTerminal(failed))
	assert.False(t, tbl.IsTerminal(active))
	assert.Len(t, tbl.States(), 5)
}
