package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type FilterAction string

const (
	FilterActionRemove FilterAction = "remove"
	FilterActionHash   FilterAction = "hash"
	FilterActionMask   FilterAction = "mask"
)

// MetadataFilter keeps credentials and bank details out of audit metadata.
type MetadataFilter struct {
	rules map[string]FilterAction
}

var defaultRules = map[string]FilterAction{
	"token":          FilterActionRemove,
	"raw_token":      FilterActionRemove,
	"secret":         FilterActionRemove,
	"password":       FilterActionRemove,
	"account_number": FilterActionMask,
	"sort_code":      FilterActionMask,
	"bank_details":   FilterActionRemove,
	"email":          FilterActionHash,
}

type FilterOption func(*MetadataFilter)

// WithField sets the action for a metadata key, overriding the defaults.
func WithField(key string, action FilterAction) FilterOption {
	return func(f *MetadataFilter) {
		f.rules[strings.ToLower(key)] = action
	}
}

// WithAllowedField lets key through untouched.
func WithAllowedField(key string) FilterOption {
	return func(f *MetadataFilter) {
		delete(f.rules, strings.ToLower(key))
	}
}

func NewMetadataFilter(opts ...FilterOption) *MetadataFilter {
	f := &MetadataFilter{rules: make(map[string]FilterAction, len(defaultRules))}
	for k, v := range defaultRules {
		f.rules[k] = v
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Filter returns a filtered copy of metadata.
func (f *MetadataFilter) Filter(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		action, ok := f.rules[strings.ToLower(key)]
		if !ok {
			out[key] = value
			continue
		}
		switch action {
		case FilterActionRemove:
		case FilterActionHash:
			sum := sha256.Sum256(fmt.Appendf(nil, "%v", value))
			out[key] = hex.EncodeToString(sum[:])
		case FilterActionMask:
			out[key] = mask(fmt.Sprintf("%v", value))
		default:
			out[key] = value
		}
	}
	return out
}

// mask keeps the last two characters.
func mask(s string) string {
	if len(s) <= 2 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-2) + s[len(s)-2:]
}
