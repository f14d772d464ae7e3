package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/svc/billing"
)

func (s *Store) ListDueBillingSettings(_ context.Context, today time.Time) ([]billing.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	today = billing.Day(today)
	var out []billing.Settings
	for _, st := range s.settings {
		if !st.NextInvoiceDate.After(today) {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, userID uuid.UUID) (*billing.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, billing.ErrProfileNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) ListActiveServices(_ context.Context, userID uuid.UUID) ([]billing.CustomerService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.CustomerService
	for _, cs := range s.services {
		if cs.UserID == userID && cs.Active {
			out = append(out, *cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) InvoiceExistsForPeriod(_ context.Context, userID uuid.UUID, start, end time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.periods[periodKey{userID: userID, start: billing.Day(start), end: billing.Day(end)}]
	return ok, nil
}

func (s *Store) NextInvoiceSequence(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *Store) CreateInvoice(_ context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := periodKey{userID: inv.UserID, start: billing.Day(inv.BillingPeriodStart), end: billing.Day(inv.BillingPeriodEnd)}
	if _, ok := s.periods[k]; ok {
		return billing.ErrInvoiceExists
	}
	c := cloneInvoice(inv)
	s.invoices[inv.ID] = &c
	s.periods[k] = inv.ID
	return nil
}

func (s *Store) AdvanceNextInvoiceDate(_ context.Context, userID uuid.UUID, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok || !st.NextInvoiceDate.Equal(billing.Day(from)) {
		return false, nil
	}
	st.NextInvoiceDate = billing.Day(to)
	return true, nil
}

func (s *Store) GetInvoice(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	c := cloneInvoice(inv)
	return &c, nil
}

func (s *Store) TransitionInvoice(_ context.Context, id uuid.UUID, from []billing.InvoiceStatus, to billing.InvoiceStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || !slices.Contains(from, inv.Status) {
		return false, nil
	}
	setInvoiceStatus(inv, to, at)
	return true, nil
}

func (s *Store) ListUnpaidInvoicesDueOn(_ context.Context, due time.Time) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due = billing.Day(due)
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if billing.Day(inv.DueDate).Equal(due) && slices.Contains(billing.UnpaidStatuses, inv.Status) {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// setInvoiceStatus must be called with the lock held.
func setInvoiceStatus(inv *billing.Invoice, to billing.InvoiceStatus, at time.Time) {
	inv.Status = to
	inv.UpdatedAt = at
	if to == billing.InvoicePaid {
		inv.PaidAt = &at
	}
}
