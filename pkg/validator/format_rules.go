package validator

import (
	"net/mail"
	"net/url"
	"strings"
)

// ValidEmail validates an address with net/mail and additionally requires a
// dotted domain, which RFC 5322 alone does not.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}
			local, domain, ok := strings.Cut(addr.Address, "@")
			if !ok || local == "" {
				return false
			}
			if !strings.Contains(domain, ".") {
				return false
			}
			for part := range strings.SplitSeq(domain, ".") {
				if part == "" {
					return false
				}
			}
			return true
		},
		Error: newError(field, "must be a valid email address", "validation.email", nil),
	}
}

// ValidURL validates an absolute http(s) URL.
func ValidURL(field, value string) Rule {
	return Rule{
		Check: func() bool {
			u, err := url.Parse(value)
			if err != nil || u.Host == "" {
				return false
			}
			return u.Scheme == "http" || u.Scheme == "https"
		},
		Error: newError(field, "must be a valid URL", "validation.url", nil),
	}
}
