package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

const DefaultMaxJSONSize = 1 << 20

// JSON decodes an application/json body in strict mode: unknown fields and
// trailing data are rejected, and string fields are trimmed of surrounding
// whitespace and control characters. Requests without a body are skipped.
func JSON() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil || r.Body == http.NoBody {
			return ErrBinderNotApplicable
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: expected application/json", ErrUnsupportedMediaType)
		}

		dec := json.NewDecoder(io.LimitReader(r.Body, DefaultMaxJSONSize+1))
		dec.DisallowUnknownFields()

		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty body", ErrFailedToParseJSON)
			}
			return fmt.Errorf("%w: %v", ErrFailedToParseJSON, err)
		}
		if dec.More() {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrFailedToParseJSON)
		}
		if dec.InputOffset() > DefaultMaxJSONSize {
			return fmt.Errorf("%w: request body too large (max %d bytes)", ErrFailedToParseJSON, DefaultMaxJSONSize)
		}

		sanitize(v)
		return nil
	}
}
