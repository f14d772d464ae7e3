package binder

import "errors"

var (
	// ErrBinderNotApplicable lets a binder step aside, e.g. JSON on a GET.
	ErrBinderNotApplicable = errors.New("binder not applicable to request")

	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
	ErrFailedToParsePath    = errors.New("failed to parse path parameters")
)
