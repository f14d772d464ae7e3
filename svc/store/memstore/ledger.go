package memstore

import (
	"context"
	"maps"
	"time"

	"github.com/linehub/billing/svc/ledger"
)

func (s *Store) LedgerEntryExists(_ context.Context, subject ledger.Subject, template string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.ledger {
		if e.Subject == subject && e.TemplateName == template && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertLedgerEntry(_ context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.DedupKey != "" {
		if _, ok := s.dedupKeys[e.DedupKey]; ok {
			return ledger.ErrDuplicate
		}
		s.dedupKeys[e.DedupKey] = struct{}{}
	}
	c := *e
	c.Metadata = maps.Clone(e.Metadata)
	s.ledger = append(s.ledger, c)
	return nil
}
