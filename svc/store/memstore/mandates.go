package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

func (s *Store) CreateMandate(_ context.Context, m *mandate.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[m.PaymentRequestID]
	if !ok || !r.IsActive() {
		return paymentrequest.ErrWrongStatus
	}
	setRequestStatus(r, paymentrequest.StatusCompleted, m.CreatedAt)
	c := *m
	s.mandates[m.ID] = &c
	return nil
}

func (s *Store) GetMandate(_ context.Context, id uuid.UUID) (*mandate.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mandates[id]
	if !ok {
		return nil, mandate.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *Store) TransitionMandate(_ context.Context, id uuid.UUID, from []mandate.Status, to mandate.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mandates[id]
	if !ok || !slices.Contains(from, m.Status) {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = at
	return true, nil
}
