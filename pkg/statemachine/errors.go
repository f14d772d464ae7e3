package statemachine

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is matched by every *ErrNoTransitionAvailable.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrNoTransitionAvailable reports a transition the table does not allow.
type ErrNoTransitionAvailable struct {
	From string
	To   string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' to '%s'", e.From, e.To)
}

func (e *ErrNoTransitionAvailable) Is(target error) bool {
	return target == ErrInvalidTransition
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}
