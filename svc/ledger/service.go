package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/pkg/email"
	"github.com/linehub/billing/pkg/lock"
	"github.com/linehub/billing/pkg/logger"
)

// Outcome is what Send did with a dispatch.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Dispatch is a message plus what it is about.
type Dispatch struct {
	Subject          Subject
	Policy           Policy
	UserID           *uuid.UUID
	InvoiceID        *uuid.UUID
	PaymentRequestID *uuid.UUID
	MandateID        *uuid.UUID
	Metadata         map[string]any
	Message          email.Message
}

// Result reports a Send. Entry is nil when the dispatch was skipped.
type Result struct {
	Outcome Outcome
	Entry   *Entry
}

type Ledger struct {
	store  Store
	sender email.Sender
	locker lock.Locker
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option {
	return func(s *Ledger) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLocker serialises concurrent sends of the same dedup key.
func WithLocker(l lock.Locker) Option {
	return func(s *Ledger) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Ledger) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Ledger. Panics if store or sender is nil.
func New(store Store, sender email.Sender, opts ...Option) *Ledger {
	if store == nil {
		panic("ledger: store is required")
	}
	if sender == nil {
		panic("ledger: sender is required")
	}

	l := &Ledger{
		store:  store,
		sender: sender,
		locker: lock.NewLocal(),
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(logger.Component("ledger"))
	return l
}

// Seen reports whether template was ever recorded for subject.
func (l *Ledger) Seen(ctx context.Context, subject Subject, template string) (bool, error) {
	ok, err := l.store.LedgerEntryExists(ctx, subject, template, time.Time{})
	if err != nil {
		return false, errors.Join(ErrFailedToCheck, err)
	}
	return ok, nil
}

// Send delivers d unless its policy finds an earlier entry, then records the
// attempt whatever the transport said. A transport failure is returned
// joined with ErrDeliveryFailed alongside a Result with OutcomeFailed.
func (l *Ledger) Send(ctx context.Context, d Dispatch) (Result, error) {
	template := d.Message.Tag
	if template == "" || d.Subject.ID == uuid.Nil {
		return Result{}, ErrInvalidDispatch
	}

	now := l.now().UTC()
	key := d.Policy.dedupKey(d.Subject, template, now)

	if key != "" {
		release, ok, err := l.locker.TryLock(ctx, "ledger:"+key)
		if err != nil {
			return Result{}, errors.Join(ErrFailedToCheck, err)
		}
		if !ok {
			// Another worker is sending this exact message right now.
			return Result{Outcome: OutcomeSkipped}, nil
		}
		defer release()

		seen, err := l.store.LedgerEntryExists(ctx, d.Subject, template, d.Policy.Since(now))
		if err != nil {
			return Result{}, errors.Join(ErrFailedToCheck, err)
		}
		if seen {
			l.log.DebugContext(ctx, "communication skipped, already recorded",
				logger.Template(template),
				slog.String("subject", d.Subject.String()),
			)
			return Result{Outcome: OutcomeSkipped}, nil
		}
	}

	entry := &Entry{
		ID:               uuid.New(),
		Subject:          d.Subject,
		UserID:           d.UserID,
		InvoiceID:        d.InvoiceID,
		PaymentRequestID: d.PaymentRequestID,
		MandateID:        d.MandateID,
		TemplateName:     template,
		Recipient:        d.Message.To,
		Metadata:         d.Metadata,
		DedupKey:         key,
		CreatedAt:        now,
	}

	messageID, sendErr := l.sender.Send(ctx, d.Message)
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
	} else {
		entry.Status = StatusSent
		entry.ProviderMessageID = messageID
	}

	if err := l.store.InsertLedgerEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicate) {
			l.log.WarnContext(ctx, "communication recorded concurrently",
				logger.Template(template),
				slog.String("dedup_key", key),
			)
		} else {
			l.log.ErrorContext(ctx, "failed to record communication",
				logger.Template(template),
				logger.MessageID(messageID),
				logger.Error(err),
			)
			return Result{Outcome: outcomeOf(entry.Status), Entry: entry}, errors.Join(ErrFailedToRecord, err, sendErr)
		}
	}

	if sendErr != nil {
		l.log.ErrorContext(ctx, "communication delivery failed",
			logger.Template(template),
			logger.UserID(d.UserID),
			logger.Error(sendErr),
		)
		return Result{Outcome: OutcomeFailed, Entry: entry}, errors.Join(ErrDeliveryFailed, sendErr)
	}

	l.log.InfoContext(ctx, "communication sent",
		logger.Template(template),
		logger.UserID(d.UserID),
		logger.MessageID(messageID),
	)
	return Result{Outcome: OutcomeSent, Entry: entry}, nil
}

func outcomeOf(s Status) Outcome {
	if s == StatusSent {
		return OutcomeSent
	}
	return OutcomeFailed
}
