// Package memory is an in-process implementation of the repositories, used
// in tests and when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/models"
)

type Store struct {
	mu sync.Mutex

	users        map[uuid.UUID]models.User
	jobs         map[uuid.UUID]models.Job
	quotes       map[uuid.UUID]models.Quote
	payments     map[uuid.UUID]models.QuotePayment // keyed by quote id
	refunds      []models.QuoteRefund
	invoices     map[uuid.UUID]models.Invoice // keyed by quote id
	invoiceSeq   int64
	marketJobs   map[uuid.UUID]models.MarketplaceJob
	applications map[uuid.UUID]models.JobApplication
	balances     map[uuid.UUID]int
	ledger       []models.CreditTransaction
}

func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]models.User),
		jobs:         make(map[uuid.UUID]models.Job),
		quotes:       make(map[uuid.UUID]models.Quote),
		payments:     make(map[uuid.UUID]models.QuotePayment),
		invoices:     make(map[uuid.UUID]models.Invoice),
		marketJobs:   make(map[uuid.UUID]models.MarketplaceJob),
		applications: make(map[uuid.UUID]models.JobApplication),
		balances:     make(map[uuid.UUID]int),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// PutUser seeds the directory.
func (s *Store) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutJob seeds the directory.
func (s *Store) PutJob(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &job, nil
}

func copyQuote(q models.Quote) *models.Quote {
	q.Items = append([]models.QuoteItem(nil), q.Items...)
	return &q
}

func containsStatus(statuses []models.QuoteStatus, status models.QuoteStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Store) CreateQuote(ctx context.Context, quote *models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.quotes {
		if existing.QuoteNumber == quote.QuoteNumber {
			return database.ErrDuplicate
		}
	}
	for i := range quote.Items {
		quote.Items[i].QuoteID = quote.ID
		if quote.Items[i].ID == uuid.Nil {
			quote.Items[i].ID = uuid.New()
		}
	}
	s.quotes[quote.ID] = *copyQuote(*quote)
	return nil
}

func (s *Store) QuoteNumberExists(ctx context.Context, quoteNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quotes {
		if q.QuoteNumber == quoteNumber {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyQuote(q), nil
}

func (s *Store) GetQuoteByNumber(ctx context.Context, quoteNumber string) (*models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quotes {
		if q.QuoteNumber == quoteNumber {
			return copyQuote(q), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) ListQuotes(ctx context.Context, tradieID uuid.UUID, filter models.QuoteFilter) ([]models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := []models.Quote{}
	for _, q := range s.quotes {
		if q.TradieID != tradieID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		quotes = append(quotes, *copyQuote(q))
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].CreatedAt.After(quotes[j].CreatedAt) })
	return paginate(quotes, filter.Limit, filter.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) UpdateQuote(ctx context.Context, quote *models.Quote, expected []models.QuoteStatus, replaceItems bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.quotes[quote.ID]
	if !ok || !containsStatus(expected, stored.Status) {
		return false, nil
	}

	stored.Title = quote.Title
	stored.Description = quote.Description
	stored.GSTEnabled = quote.GSTEnabled
	stored.Subtotal = quote.Subtotal
	stored.GSTAmount = quote.GSTAmount
	stored.TotalAmount = quote.TotalAmount
	stored.ValidUntil = quote.ValidUntil
	stored.TermsConditions = quote.TermsConditions
	stored.Notes = quote.Notes
	stored.UpdatedAt = quote.UpdatedAt
	if replaceItems {
		for i := range quote.Items {
			quote.Items[i].QuoteID = quote.ID
			if quote.Items[i].ID == uuid.Nil {
				quote.Items[i].ID = uuid.New()
			}
		}
		stored.Items = append([]models.QuoteItem(nil), quote.Items...)
	}
	s.quotes[quote.ID] = stored
	return true, nil
}

func (s *Store) TransitionQuoteStatus(ctx context.Context, id uuid.UUID, from []models.QuoteStatus, to models.QuoteStatus, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, from, to, reason, at), nil
}

func (s *Store) transitionLocked(id uuid.UUID, from []models.QuoteStatus, to models.QuoteStatus, reason string, at time.Time) bool {
	q, ok := s.quotes[id]
	if !ok || !containsStatus(from, q.Status) {
		return false
	}

	q.Status = to
	q.StatusReason = reason
	q.UpdatedAt = at
	stamp := at
	switch to {
	case models.QuoteStatusSent:
		q.SentAt = &stamp
	case models.QuoteStatusViewed:
		q.ViewedAt = &stamp
	case models.QuoteStatusAccepted:
		q.AcceptedAt = &stamp
	case models.QuoteStatusRejected:
		q.RejectedAt = &stamp
	}
	s.quotes[id] = q
	return true
}

func (s *Store) DeleteQuote(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok || q.Status != models.QuoteStatusDraft {
		return false, nil
	}
	delete(s.quotes, id)
	return true, nil
}

func (s *Store) ExpireOverdueQuotes(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, q := range s.quotes {
		if q.Status.IsTerminal() || !q.ValidUntil.Before(now) {
			continue
		}
		q.Status = models.QuoteStatusExpired
		q.StatusReason = "validity period ended"
		q.UpdatedAt = now
		s.quotes[id] = q
		n++
	}
	return n, nil
}

func (s *Store) AcceptQuoteWithPayment(ctx context.Context, quoteID uuid.UUID, from []models.QuoteStatus, at time.Time, payment *models.QuotePayment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[quoteID]; exists {
		return false, database.ErrDuplicate
	}
	if !s.transitionLocked(quoteID, from, models.QuoteStatusAccepted, "accepted with payment", at) {
		return false, nil
	}
	s.payments[quoteID] = *payment
	return true, nil
}

func (s *Store) GetPaymentByQuote(ctx context.Context, quoteID uuid.UUID) (*models.QuotePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[quoteID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (s *Store) findPaymentLocked(paymentID uuid.UUID) (models.QuotePayment, bool) {
	for _, p := range s.payments {
		if p.ID == paymentID {
			return p, true
		}
	}
	return models.QuotePayment{}, false
}

func paymentStatusFor(p models.QuotePayment) models.PaymentStatus {
	switch {
	case p.RefundedAmount.GreaterThanOrEqual(p.Amount):
		return models.PaymentStatusRefunded
	case p.RefundedAmount.IsPositive():
		return models.PaymentStatusPartiallyRefunded
	}
	return models.PaymentStatusSucceeded
}

func (s *Store) ReserveRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.findPaymentLocked(paymentID)
	if !ok || p.RefundedAmount.Add(amount).GreaterThan(p.Amount) {
		return false, nil
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.Status = paymentStatusFor(p)
	s.payments[p.QuoteID] = p
	return true, nil
}

func (s *Store) ReleaseRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.findPaymentLocked(paymentID)
	if !ok {
		return database.ErrNotFound
	}
	p.RefundedAmount = decimal.Max(p.RefundedAmount.Sub(amount), decimal.Zero)
	p.Status = paymentStatusFor(p)
	s.payments[p.QuoteID] = p
	return nil
}

func (s *Store) CreateRefund(ctx context.Context, refund *models.QuoteRefund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, *refund)
	return nil
}

// Refunds returns every recorded refund.
func (s *Store) Refunds() []models.QuoteRefund {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.QuoteRefund(nil), s.refunds...)
}

func (s *Store) NextInvoiceSequence(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoiceSeq++
	return s.invoiceSeq, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[invoice.QuoteID]; exists {
		return database.ErrDuplicate
	}
	s.invoices[invoice.QuoteID] = *invoice
	return nil
}

func (s *Store) GetInvoiceByQuote(ctx context.Context, quoteID uuid.UUID) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[quoteID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) QuoteStatsByStatus(ctx context.Context, tradieID uuid.UUID, start, end time.Time) ([]models.StatusAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := make(map[models.QuoteStatus]*models.StatusAggregate)
	for _, q := range s.quotes {
		if q.TradieID != tradieID || q.CreatedAt.Before(start) || q.CreatedAt.After(end) {
			continue
		}
		agg, ok := byStatus[q.Status]
		if !ok {
			agg = &models.StatusAggregate{Status: q.Status, Amount: decimal.Zero}
			byStatus[q.Status] = agg
		}
		agg.Count++
		agg.Amount = agg.Amount.Add(q.TotalAmount)
	}

	stats := []models.StatusAggregate{}
	for _, agg := range byStatus {
		stats = append(stats, *agg)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}
