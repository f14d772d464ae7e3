package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/svc/paymentrequest"
)

func (s *Store) CreatePaymentRequest(_ context.Context, r *paymentrequest.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.requests[r.ID] = &c
	return nil
}

func (s *Store) GetPaymentRequest(_ context.Context, id uuid.UUID) (*paymentrequest.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, paymentrequest.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *Store) GetPaymentRequestByTokenHash(_ context.Context, hash string) (*paymentrequest.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.TokenHash == hash {
			c := *r
			return &c, nil
		}
	}
	return nil, paymentrequest.ErrNotFound
}

func (s *Store) TransitionPaymentRequest(_ context.Context, id uuid.UUID, from []paymentrequest.Status, to paymentrequest.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || !slices.Contains(from, r.Status) {
		return false, nil
	}
	setRequestStatus(r, to, at)
	return true, nil
}

func (s *Store) ListActivePaymentRequestsByInvoice(_ context.Context, invoiceID uuid.UUID) ([]paymentrequest.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []paymentrequest.PaymentRequest
	for _, r := range s.requests {
		if r.InvoiceID != nil && *r.InvoiceID == invoiceID && r.IsActive() {
			out = append(out, *r)
		}
	}
	return out, nil
}

// setRequestStatus must be called with the lock held.
func setRequestStatus(r *paymentrequest.PaymentRequest, to paymentrequest.Status, at time.Time) {
	r.Status = to
	r.UpdatedAt = at
	switch to {
	case paymentrequest.StatusOpened:
		r.OpenedAt = &at
	case paymentrequest.StatusCompleted:
		r.CompletedAt = &at
	case paymentrequest.StatusCancelled:
		r.CancelledAt = &at
	}
}
