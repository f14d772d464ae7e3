// Package ledger is the append-only record of every customer communication.
// It sends through an email.Sender and consults its own history first, so a
// template is delivered at most once per subject (ever, or within a window).
package ledger

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// SubjectKind names the entity a communication is about.
type SubjectKind string

const (
	SubjectInvoice        SubjectKind = "invoice"
	SubjectPaymentRequest SubjectKind = "payment_request"
	SubjectMandate        SubjectKind = "mandate"
	SubjectUser           SubjectKind = "user"
)

// Subject identifies the entity a template is deduplicated against.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

func (s Subject) String() string {
	return string(s.Kind) + ":" + s.ID.String()
}

// Entry is one send attempt. Failed attempts are recorded too and block
// repeats the same way successful ones do.
type Entry struct {
	ID                uuid.UUID      `json:"id"`
	Subject           Subject        `json:"-"`
	UserID            *uuid.UUID     `json:"user_id,omitempty"`
	InvoiceID         *uuid.UUID     `json:"invoice_id,omitempty"`
	PaymentRequestID  *uuid.UUID     `json:"payment_request_id,omitempty"`
	MandateID         *uuid.UUID     `json:"mandate_id,omitempty"`
	TemplateName      string         `json:"template_name"`
	Recipient         string         `json:"recipient"`
	Status            Status         `json:"status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Error             string         `json:"error,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	DedupKey          string         `json:"dedup_key,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Policy decides how long an entry blocks a repeat of the same template for
// the same subject.
type Policy struct {
	window time.Duration
	none   bool
}

var (
	// Ever blocks a repeat forever. Used for invoice, reminder and receipt
	// templates.
	Ever = Policy{}

	// NoDedup records the entry but never blocks.
	NoDedup = Policy{none: true}
)

// Within blocks a repeat for d after the previous entry.
func Within(d time.Duration) Policy {
	if d <= 0 {
		return Ever
	}
	return Policy{window: d}
}

// Since returns the lookback start for now; zero means since forever.
func (p Policy) Since(now time.Time) time.Time {
	if p.window == 0 {
		return time.Time{}
	}
	return now.Add(-p.window)
}

// dedupKey is stored under a unique index so two concurrent senders cannot
// both record the same event. Windowed keys are bucketed by window length.
func (p Policy) dedupKey(s Subject, template string, now time.Time) string {
	if p.none {
		return ""
	}
	key := s.String() + ":" + template
	if p.window > 0 {
		key += ":" + strconv.FormatInt(now.Truncate(p.window).Unix(), 10)
	}
	return key
}
