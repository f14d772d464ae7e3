package audit

func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithUserID overrides any user ID taken from context; batch jobs act on
// behalf of a customer without a request.
func WithUserID(id string) EventOption {
	return func(e *Event) {
		e.UserID = id
	}
}

func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

func WithResult(result Result) EventOption {
	return func(e *Event) {
		e.Result = result
	}
}

// WithError marks the event failed with err.
func WithError(err error) EventOption {
	return func(e *Event) {
		if err == nil {
			return
		}
		e.Result = ResultError
		e.Error = err.Error()
	}
}
