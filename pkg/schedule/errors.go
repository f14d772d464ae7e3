package schedule

import "errors"

var (
	ErrInvalidClock           = errors.New("schedule: invalid clock time, want HH:MM")
	ErrJobAlreadyRegistered   = errors.New("schedule: job already registered")
	ErrSchedulerNotConfigured = errors.New("schedule: no jobs registered")
)
