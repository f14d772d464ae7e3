package memstore

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/paymentrequest"
)

func (s *Store) CreatePaymentAttempt(_ context.Context, a *checkout.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.attempts[a.ID] = &c
	if r, ok := s.requests[a.PaymentRequestID]; ok {
		r.ProviderReference = a.TransactionReference
		r.UpdatedAt = a.CreatedAt
	}
	return nil
}

func (s *Store) LatestPendingPaymentAttempt(_ context.Context, requestID uuid.UUID) (*checkout.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *checkout.Attempt
	for _, a := range s.attempts {
		if a.PaymentRequestID != requestID || a.Status != checkout.AttemptPending {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, checkout.ErrAttemptNotFound
	}
	c := *latest
	return &c, nil
}

func (s *Store) GetPaymentAttemptByReference(_ context.Context, reference string) (*checkout.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.TransactionReference == reference {
			c := *a
			return &c, nil
		}
	}
	return nil, checkout.ErrAttemptNotFound
}

// SettlePayment checks every precondition before writing so a rejected
// settlement leaves no trace.
func (s *Store) SettlePayment(_ context.Context, st checkout.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[st.PaymentRequestID]
	if !ok || !r.IsActive() {
		return paymentrequest.ErrWrongStatus
	}
	if st.Receipt != nil {
		if _, dup := s.receipts[st.PaymentRequestID]; dup {
			return paymentrequest.ErrWrongStatus
		}
	}

	setRequestStatus(r, st.Outcome.RequestStatus(), st.At)

	if a, ok := s.attempts[st.AttemptID]; ok {
		a.Status = checkout.AttemptStatus(st.Outcome)
		a.Corroborated = st.Corroborated
		a.UpdatedAt = st.At
	}
	if st.Outcome == checkout.OutcomeSuccess && st.InvoiceID != nil {
		if inv, ok := s.invoices[*st.InvoiceID]; ok && slices.Contains(billing.UnpaidStatuses, inv.Status) {
			setInvoiceStatus(inv, billing.InvoicePaid, st.At)
		}
	}
	if st.Receipt != nil {
		c := *st.Receipt
		s.receipts[st.PaymentRequestID] = &c
	}
	return nil
}

func (s *Store) GetReceiptByPaymentRequest(_ context.Context, requestID uuid.UUID) (*checkout.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.receipts[requestID]
	if !ok {
		return nil, checkout.ErrReceiptNotFound
	}
	c := *rc
	return &c, nil
}
