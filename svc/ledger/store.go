package ledger

import (
	"context"
	"time"
)

type Store interface {
	// LedgerEntryExists reports whether an entry for subject and template was
	// recorded at or after since. A zero since matches any time.
	LedgerEntryExists(ctx context.Context, subject Subject, template string, since time.Time) (bool, error)

	// InsertLedgerEntry appends e, returning ErrDuplicate when e.DedupKey is
	// already present.
	InsertLedgerEntry(ctx context.Context, e *Entry) error
}
