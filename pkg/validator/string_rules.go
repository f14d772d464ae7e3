package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RequiredString validates that a string is not empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: newError(field, "field is required", "validation.required", nil),
	}
}

// MaxLenString counts runes, not bytes.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool {
			return utf8.RuneCountInString(value) <= max
		},
		Error: newError(field,
			fmt.Sprintf("must be at most %d characters long", max),
			"validation.max_length",
			map[string]any{"max": max},
		),
	}
}

// Digits validates that value consists of exactly n ASCII digits.
func Digits(field, value string, n int) Rule {
	return Rule{
		Check: func() bool {
			if len(value) != n {
				return false
			}
			for i := 0; i < len(value); i++ {
				if value[i] < '0' || value[i] > '9' {
					return false
				}
			}
			return true
		},
		Error: newError(field,
			fmt.Sprintf("must be exactly %d digits", n),
			"validation.digits",
			map[string]any{"length": n},
		),
	}
}

func MatchesRegex(field, value string, re *regexp.Regexp, message string) Rule {
	return Rule{
		Check: func() bool {
			return re.MatchString(value)
		},
		Error: newError(field, message, "validation.pattern", map[string]any{"pattern": re.String()}),
	}
}

// True validates a boolean acknowledgement such as a consent checkbox.
func True(field string, value bool, message string) Rule {
	return Rule{
		Check: func() bool {
			return value
		},
		Error: newError(field, message, "validation.accepted", nil),
	}
}

// InList validates that value is one of allowed.
func InList[T ~string](field string, value T, allowed ...T) Rule {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		},
		Error: newError(field,
			"must be one of: "+strings.Join(names, ", "),
			"validation.in_list",
			map[string]any{"allowed_values": names},
		),
	}
}

// Required fails when present is false. Use it for nested objects and other
// values that have no natural empty string.
func Required(field string, present bool) Rule {
	return Rule{
		Check: func() bool { return present },
		Error: newError(field, "field is required", "validation.required", nil),
	}
}
