package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContextExtractor pulls a value from a request context; ok is false when
// the value is absent.
type ContextExtractor func(context.Context) (string, bool)

// Logger builds audit events, enriching them from context, and stores them.
type Logger struct {
	storage            Storage
	userIDExtractor    ContextExtractor
	requestIDExtractor ContextExtractor
	ipExtractor        ContextExtractor
	userAgentExtractor ContextExtractor
	filter             *MetadataFilter
	now                func() time.Time
}

type Option func(*Logger)

func WithUserIDExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.userIDExtractor = fn }
}

func WithRequestIDExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.requestIDExtractor = fn }
}

func WithIPExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.ipExtractor = fn }
}

func WithUserAgentExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.userAgentExtractor = fn }
}

// WithMetadataFilter scrubs metadata before events leave Build.
func WithMetadataFilter(f *MetadataFilter) Option {
	return func(l *Logger) { l.filter = f }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates a Logger. Panics if storage is nil.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &Logger{
		storage: storage,
		filter:  NewMetadataFilter(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Build creates an event without storing it, for callers that persist it
// inside their own database transaction.
func (l *Logger) Build(ctx context.Context, action string, opts ...EventOption) (Event, error) {
	event := l.eventFromContext(ctx)
	event.ID = uuid.NewString()
	event.CreatedAt = l.now().UTC()
	event.Action = action
	event.Result = ResultSuccess

	for _, opt := range opts {
		opt(&event)
	}
	if l.filter != nil {
		event.Metadata = l.filter.Filter(event.Metadata)
	}

	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	event, err := l.Build(ctx, action, opts...)
	if err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}

// LogError records a failed action.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.Log(ctx, action, append(opts, WithError(err))...)
}

func (l *Logger) eventFromContext(ctx context.Context) Event {
	var event Event
	extract := func(fn ContextExtractor, dst *string) {
		if fn == nil {
			return
		}
		if v, ok := fn(ctx); ok {
			*dst = v
		}
	}
	extract(l.userIDExtractor, &event.UserID)
	extract(l.requestIDExtractor, &event.RequestID)
	extract(l.ipExtractor, &event.IP)
	extract(l.userAgentExtractor, &event.UserAgent)
	return event
}

// Discard returns a Logger that drops every event.
func Discard() *Logger {
	return NewLogger(StorageFunc(func(context.Context, ...Event) error { return nil }))
}
