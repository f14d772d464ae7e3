package binder

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Query binds URL query parameters to fields tagged `query:"name"`.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}

// Path binds chi route parameters to fields tagged `path:"name"`.
func Path() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return ErrBinderNotApplicable
		}
		values := make(map[string][]string, len(rctx.URLParams.Keys))
		for i, key := range rctx.URLParams.Keys {
			values[key] = []string{rctx.URLParams.Values[i]}
		}
		return bindToStruct(v, "path", values, ErrFailedToParsePath)
	}
}
