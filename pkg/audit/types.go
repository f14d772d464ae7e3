package audit

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

// Event is a single append-only audit record.
type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	UserID     string         `json:"user_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption populates an Event during Build, Log or LogError.
type EventOption func(*Event)

// Storage persists events. Implementations must be append-only.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
}

// StorageFunc adapts a function to Storage.
type StorageFunc func(ctx context.Context, events ...Event) error

func (f StorageFunc) Store(ctx context.Context, events ...Event) error {
	return f(ctx, events...)
}
