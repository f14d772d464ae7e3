// Package email sends transactional mail through Postmark, or writes it to
// disk in development.
package email

import (
	"context"
	"strings"

	"github.com/linehub/billing/pkg/validator"
)

// Sender delivers a message and returns the transport's message ID.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// Message is a single outbound email.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Tag         string // template name, used for transport-side analytics
	Attachments []Attachment
}

// Attachment is a file sent with the message, e.g. an invoice PDF.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Validate checks the fields every transport needs.
func (m Message) Validate() error {
	return validator.Apply(
		validator.ValidEmail("to", strings.TrimSpace(m.To)),
		validator.RequiredString("subject", m.Subject),
		validator.RequiredString("body", m.HTMLBody+m.TextBody),
	)
}
