// Package memstore keeps every billing record in memory behind one mutex.
// Conditional updates, unique periods and dedup keys behave as they do in
// Postgres, which makes it usable for tests and single-process dev runs.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

var (
	_ paymentrequest.Store = (*Store)(nil)
	_ billing.Store        = (*Store)(nil)
	_ checkout.Store       = (*Store)(nil)
	_ mandate.Store        = (*Store)(nil)
	_ ledger.Store         = (*Store)(nil)
	_ audit.Storage        = (*Store)(nil)
)

type periodKey struct {
	userID     uuid.UUID
	start, end time.Time
}

type Store struct {
	mu sync.RWMutex

	requests  map[uuid.UUID]*paymentrequest.PaymentRequest
	profiles  map[uuid.UUID]*billing.Profile
	settings  map[uuid.UUID]*billing.Settings
	services  map[uuid.UUID]*billing.CustomerService
	invoices  map[uuid.UUID]*billing.Invoice
	periods   map[periodKey]uuid.UUID
	sequences map[string]int64
	attempts  map[uuid.UUID]*checkout.Attempt
	receipts  map[uuid.UUID]*checkout.Receipt // by payment request
	mandates  map[uuid.UUID]*mandate.Mandate
	ledger    []ledger.Entry
	dedupKeys map[string]struct{}
	events    []audit.Event
}

// New returns an empty store.
func New() *Store {
	return &Store{
		requests:  make(map[uuid.UUID]*paymentrequest.PaymentRequest),
		profiles:  make(map[uuid.UUID]*billing.Profile),
		settings:  make(map[uuid.UUID]*billing.Settings),
		services:  make(map[uuid.UUID]*billing.CustomerService),
		invoices:  make(map[uuid.UUID]*billing.Invoice),
		periods:   make(map[periodKey]uuid.UUID),
		sequences: make(map[string]int64),
		attempts:  make(map[uuid.UUID]*checkout.Attempt),
		receipts:  make(map[uuid.UUID]*checkout.Receipt),
		mandates:  make(map[uuid.UUID]*mandate.Mandate),
		dedupKeys: make(map[string]struct{}),
	}
}

// Seeding helpers. Profiles and services are owned by the portal; these
// stand in for it.

func (s *Store) PutProfile(p billing.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = &p
}

func (s *Store) PutBillingSettings(st billing.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.NextInvoiceDate = billing.Day(st.NextInvoiceDate)
	s.settings[st.UserID] = &st
}

func (s *Store) PutCustomerService(cs billing.CustomerService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	s.services[cs.ID] = &cs
}

// Inspection helpers.

// BillingSettings returns a copy of the customer's settings.
func (s *Store) BillingSettings(userID uuid.UUID) (billing.Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userID]
	if !ok {
		return billing.Settings{}, false
	}
	return *st, true
}

// Invoices returns the customer's invoices ordered by creation.
func (s *Store) Invoices(userID uuid.UUID) []billing.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if inv.UserID == userID {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// PaymentRequests returns the requests for an invoice ordered by creation.
func (s *Store) PaymentRequests(invoiceID uuid.UUID) []paymentrequest.PaymentRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []paymentrequest.PaymentRequest
	for _, r := range s.requests {
		if r.InvoiceID != nil && *r.InvoiceID == invoiceID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// LedgerEntries returns every recorded communication in insertion order.
func (s *Store) LedgerEntries() []ledger.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ledger)
}

// Receipts returns every receipt.
func (s *Store) Receipts() []checkout.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]checkout.Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		out = append(out, *r)
	}
	return out
}

// Attempts returns the attempts for a payment request.
func (s *Store) Attempts(requestID uuid.UUID) []checkout.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []checkout.Attempt
	for _, a := range s.attempts {
		if a.PaymentRequestID == requestID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Mandates returns every mandate.
func (s *Store) Mandates() []mandate.Mandate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mandate.Mandate, 0, len(s.mandates))
	for _, m := range s.mandates {
		out = append(out, *m)
	}
	return out
}

// AuditEvents returns stored audit events, optionally filtered by action.
func (s *Store) AuditEvents(action string) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Store implements audit.Storage.
func (s *Store) Store(_ context.Context, events ...audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Ping implements the health check for the memory backend.
func (s *Store) Ping(context.Context) error {
	return nil
}

func cloneInvoice(inv *billing.Invoice) billing.Invoice {
	c := *inv
	c.Lines = slices.Clone(inv.Lines)
	return c
}
