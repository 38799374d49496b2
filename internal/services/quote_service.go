package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/metrics"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/pricing"
	"tradiehub-backend/internal/retry"
)

const (
	quoteNumberAttempts = 5
	defaultPageSize     = 20
	maxPageSize         = 100
)

type QuoteServiceConfig struct {
	Currency            string
	QuoteNumberPrefix   string
	BaseURL             string
	PaymentTimeout      time.Duration
	NotificationTimeout time.Duration
	// IdempotencyTTL is how long a completed request id keeps blocking replays.
	IdempotencyTTL time.Duration
	InvoiceDueDays int
	PersistRetry   retry.Policy
}

type QuoteServiceDeps struct {
	Quotes     QuoteStore
	Payments   PaymentStore
	Directory  Directory
	Calculator *pricing.Calculator
	Gateway    PaymentGateway
	Sender     Sender
	Locker     Locker
	Logger     *logrus.Logger
}

// QuoteService owns the quote lifecycle and the payment-coupled transitions.
type QuoteService struct {
	quotes     QuoteStore
	payments   PaymentStore
	directory  Directory
	calculator *pricing.Calculator
	gateway    PaymentGateway
	sender     Sender
	locker     Locker
	logger     *logrus.Logger
	cfg        QuoteServiceConfig
	now        func() time.Time
}

func NewQuoteService(deps QuoteServiceDeps, cfg QuoteServiceConfig) *QuoteService {
	if cfg.Currency == "" {
		cfg.Currency = "aud"
	}
	if cfg.QuoteNumberPrefix == "" {
		cfg.QuoteNumberPrefix = "QT"
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 20 * time.Second
	}
	if cfg.NotificationTimeout <= 0 {
		cfg.NotificationTimeout = 10 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.InvoiceDueDays <= 0 {
		cfg.InvoiceDueDays = 14
	}
	if cfg.PersistRetry.MaxRetries <= 0 {
		cfg.PersistRetry = retry.Policy{MaxRetries: 3, Backoffs: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond}}
	}

	return &QuoteService{
		quotes:     deps.Quotes,
		payments:   deps.Payments,
		directory:  deps.Directory,
		calculator: deps.Calculator,
		gateway:    deps.Gateway,
		sender:     deps.Sender,
		locker:     deps.Locker,
		logger:     deps.Logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *QuoteService) WithClock(now func() time.Time) *QuoteService {
	s.now = now
	return s
}

// Calculate exposes the pricing calculator standalone.
func (s *QuoteService) Calculate(req models.CalculateQuoteRequest) (*models.QuoteCalculation, error) {
	return s.calculator.Calculate(req.Items, req.GSTEnabled)
}

func (s *QuoteService) CreateQuote(ctx context.Context, tradieID uuid.UUID, req models.CreateQuoteRequest) (*models.Quote, error) {
	gstEnabled := true
	if req.GSTEnabled != nil {
		gstEnabled = *req.GSTEnabled
	}

	calc, err := s.calculator.Calculate(req.Items, gstEnabled)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !req.ValidUntil.After(now) {
		return nil, apperr.ValidationField("valid_until", "valid until must be in the future")
	}

	client, err := s.directory.GetUser(ctx, req.ClientID)
	if err != nil {
		return nil, s.storeError(err, "client", "failed to load client")
	}
	if client.Role != models.RoleClient {
		return nil, apperr.ValidationField("client_id", "user is not a client")
	}

	if req.JobID != nil {
		job, err := s.directory.GetJob(ctx, *req.JobID)
		if err != nil {
			return nil, s.storeError(err, "job", "failed to load job")
		}
		if job.ClientID != req.ClientID {
			return nil, apperr.ValidationField("job_id", "job does not belong to this client")
		}
		if job.TradieID != nil && *job.TradieID != tradieID {
			return nil, apperr.UnauthorizedAccess("job is assigned to another tradie")
		}
	}

	quote := &models.Quote{
		ID:              uuid.New(),
		TradieID:        tradieID,
		ClientID:        req.ClientID,
		JobID:           req.JobID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Items:           pricing.BuildItems(req.Items, calc),
		GSTEnabled:      gstEnabled,
		Subtotal:        calc.Subtotal,
		GSTAmount:       calc.GSTAmount,
		TotalAmount:     calc.TotalAmount,
		Status:          models.QuoteStatusDraft,
		ValidUntil:      req.ValidUntil,
		TermsConditions: req.TermsConditions,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The existence check avoids most collisions; the unique constraint
	// catches the rest.
	for attempt := 0; attempt < quoteNumberAttempts; attempt++ {
		number := s.newQuoteNumber(now)
		exists, err := s.quotes.QuoteNumberExists(ctx, number)
		if err != nil {
			return nil, apperr.Internal("failed to check quote number", err)
		}
		if exists {
			continue
		}

		quote.QuoteNumber = number
		err = s.quotes.CreateQuote(ctx, quote)
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			s.logger.WithError(err).WithField("tradie_id", tradieID).Error("failed to create quote")
			return nil, apperr.Internal("failed to create quote", err)
		}

		metrics.RecordQuoteTransition("", string(models.QuoteStatusDraft))
		return quote, nil
	}

	return nil, apperr.Internal("failed to allocate a unique quote number", nil)
}

// newQuoteNumber returns PREFIX-YYYYMMDD-XXXXXX with a random base36 suffix.
func (s *QuoteService) newQuoteNumber(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(strconv.FormatUint(binary.BigEndian.Uint64(id[:8]), 36))
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	suffix = strings.Repeat("0", 6-len(suffix)) + suffix
	return fmt.Sprintf("%s-%s-%s", s.cfg.QuoteNumberPrefix, now.Format("20060102"), suffix)
}

// GetQuote returns a quote to its tradie, its client or an admin.
func (s *QuoteService) GetQuote(ctx context.Context, quoteID uuid.UUID, actor models.Actor) (*models.Quote, error) {
	quote, err := s.loadQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && quote.TradieID != actor.UserID && quote.ClientID != actor.UserID {
		return nil, apperr.UnauthorizedAccess("you do not have access to this quote")
	}
	if err := s.expireIfOverdue(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *QuoteService) ListQuotes(ctx context.Context, tradieID uuid.UUID, filter models.QuoteFilter) ([]models.Quote, error) {
	if filter.Status != "" {
		if _, ok := models.ParseQuoteStatus(string(filter.Status)); !ok {
			return nil, apperr.ValidationField("status", "unknown quote status")
		}
	}
	filter.Limit, filter.Offset = page(filter.Limit, filter.Offset)

	quotes, err := s.quotes.ListQuotes(ctx, tradieID, filter)
	if err != nil {
		return nil, apperr.Internal("failed to list quotes", err)
	}

	// Overdue quotes are expired on read, the same as a single fetch. One
	// that no longer matches the status filter drops out of the page.
	listed := quotes[:0]
	for i := range quotes {
		if err := s.expireIfOverdue(ctx, &quotes[i]); err != nil {
			return nil, err
		}
		if filter.Status != "" && quotes[i].Status != filter.Status {
			continue
		}
		listed = append(listed, quotes[i])
	}
	return listed, nil
}

func (s *QuoteService) UpdateQuote(ctx context.Context, quoteID, tradieID uuid.UUID, req models.UpdateQuoteRequest) (*models.Quote, error) {
	quote, err := s.loadOwnedQuote(ctx, quoteID, tradieID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfOverdue(ctx, quote); err != nil {
		return nil, err
	}
	if !quote.Status.IsEditable() {
		return nil, apperr.StateConflict(fmt.Sprintf("quote cannot be edited while %s", quote.Status), string(quote.Status))
	}

	now := s.now()
	if req.Title != nil {
		quote.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		quote.Description = *req.Description
	}
	if req.TermsConditions != nil {
		quote.TermsConditions = *req.TermsConditions
	}
	if req.Notes != nil {
		quote.Notes = *req.Notes
	}
	if req.ValidUntil != nil {
		if !req.ValidUntil.After(now) {
			return nil, apperr.ValidationField("valid_until", "valid until must be in the future")
		}
		quote.ValidUntil = *req.ValidUntil
	}

	replaceItems := req.Items != nil
	if replaceItems || req.GSTEnabled != nil {
		if req.GSTEnabled != nil {
			quote.GSTEnabled = *req.GSTEnabled
		}
		inputs := req.Items
		if !replaceItems {
			inputs = pricing.Inputs(quote.Items)
		}
		calc, err := s.calculator.Calculate(inputs, quote.GSTEnabled)
		if err != nil {
			return nil, err
		}
		if replaceItems {
			quote.Items = pricing.BuildItems(inputs, calc)
		}
		quote.Subtotal = calc.Subtotal
		quote.GSTAmount = calc.GSTAmount
		quote.TotalAmount = calc.TotalAmount
	}
	quote.UpdatedAt = now

	ok, err := s.quotes.UpdateQuote(ctx, quote, models.EditableQuoteStatuses, replaceItems)
	if err != nil {
		s.logger.WithError(err).WithField("quote_id", quoteID).Error("failed to update quote")
		return nil, apperr.Internal("failed to update quote", err)
	}
	if !ok {
		current, err := s.loadQuote(ctx, quoteID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.StateConflict(fmt.Sprintf("quote cannot be edited while %s", current.Status), string(current.Status))
	}

	return s.loadQuote(ctx, quoteID)
}

// tradieTargets are the statuses a tradie may record directly. Viewed is set
// only when the client opens the quote.
var tradieTargets = map[models.QuoteStatus]bool{
	models.QuoteStatusSent:      true,
	models.QuoteStatusAccepted:  true,
	models.QuoteStatusRejected:  true,
	models.QuoteStatusCancelled: true,
	models.QuoteStatusExpired:   true,
}

func (s *QuoteService) UpdateQuoteStatus(ctx context.Context, quoteID, tradieID uuid.UUID, req models.UpdateQuoteStatusRequest) (*models.Quote, error) {
	target, ok := models.ParseQuoteStatus(req.Status)
	if !ok {
		return nil, apperr.ValidationField("status", "unknown quote status")
	}

	quote, err := s.loadOwnedQuote(ctx, quoteID, tradieID)
	if err != nil {
		return nil, err
	}
	if target != models.QuoteStatusExpired {
		if err := s.expireIfOverdue(ctx, quote); err != nil {
			return nil, err
		}
	}

	if !quote.Status.CanTransitionTo(target) {
		return nil, apperr.InvalidStateTransition("quote", string(quote.Status), string(target))
	}
	if !tradieTargets[target] {
		return nil, apperr.UnauthorizedAccess(fmt.Sprintf("status %s cannot be set by the tradie", target))
	}

	from := quote.Status
	if err := s.transition(ctx, quote, []models.QuoteStatus{from}, target, req.Reason); err != nil {
		return nil, err
	}
	return s.loadQuote(ctx, quoteID)
}

func (s *QuoteService) DeleteQuote(ctx context.Context, quoteID, tradieID uuid.UUID) error {
	quote, err := s.loadOwnedQuote(ctx, quoteID, tradieID)
	if err != nil {
		return err
	}
	if quote.Status != models.QuoteStatusDraft {
		return apperr.StateConflict("only draft quotes can be deleted", string(quote.Status))
	}

	ok, err := s.quotes.DeleteQuote(ctx, quoteID)
	if err != nil {
		return apperr.Internal("failed to delete quote", err)
	}
	if !ok {
		return apperr.StateConflict("only draft quotes can be deleted", "unknown")
	}
	return nil
}

// ExpireOverdue marks every non-terminal quote past its validity as expired.
func (s *QuoteService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.quotes.ExpireOverdueQuotes(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire quotes: %w", err)
	}
	return n, nil
}

func (s *QuoteService) GetAnalytics(ctx context.Context, tradieID uuid.UUID, start, end time.Time) (*models.QuoteAnalytics, error) {
	if end.Before(start) {
		return nil, apperr.ValidationField("end_date", "end date must not be before start date")
	}

	rows, err := s.quotes.QuoteStatsByStatus(ctx, tradieID, start, end)
	if err != nil {
		return nil, apperr.Internal("failed to load quote analytics", err)
	}

	analytics := &models.QuoteAnalytics{
		StartDate: start,
		EndDate:   end,
		ByStatus:  rows,
	}
	var accepted, drafts int
	for _, row := range rows {
		analytics.TotalQuotes += row.Count
		analytics.TotalValue = analytics.TotalValue.Add(row.Amount)
		switch row.Status {
		case models.QuoteStatusAccepted:
			accepted = row.Count
			analytics.AcceptedValue = row.Amount
		case models.QuoteStatusDraft:
			drafts = row.Count
		}
	}
	// Drafts never reached the client so they do not count towards conversion.
	if sent := analytics.TotalQuotes - drafts; sent > 0 {
		analytics.ConversionRate = float64(int(float64(accepted)/float64(sent)*10000+0.5)) / 10000
	}
	return analytics, nil
}

func (s *QuoteService) loadQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, s.storeError(err, "quote", "failed to load quote")
	}
	return quote, nil
}

func (s *QuoteService) loadOwnedQuote(ctx context.Context, quoteID, tradieID uuid.UUID) (*models.Quote, error) {
	quote, err := s.loadQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.TradieID != tradieID {
		return nil, apperr.UnauthorizedAccess("you do not own this quote")
	}
	return quote, nil
}

// expireIfOverdue lazily moves a non-terminal quote past its validity to
// expired and updates quote in place.
func (s *QuoteService) expireIfOverdue(ctx context.Context, quote *models.Quote) error {
	now := s.now()
	if quote.Status.IsTerminal() || !quote.IsExpiredAt(now) {
		return nil
	}

	from := quote.Status
	ok, err := s.quotes.TransitionQuoteStatus(ctx, quote.ID, []models.QuoteStatus{from}, models.QuoteStatusExpired, "validity period ended", now)
	if err != nil {
		return apperr.Internal("failed to expire quote", err)
	}
	if !ok {
		current, err := s.loadQuote(ctx, quote.ID)
		if err != nil {
			return err
		}
		*quote = *current
		return nil
	}

	metrics.RecordQuoteTransition(string(from), string(models.QuoteStatusExpired))
	quote.Status = models.QuoteStatusExpired
	quote.StatusReason = "validity period ended"
	quote.UpdatedAt = now
	return nil
}

// transition applies a conditional status change. Losing the race reports
// the status that won.
func (s *QuoteService) transition(ctx context.Context, quote *models.Quote, from []models.QuoteStatus, to models.QuoteStatus, reason string) error {
	now := s.now()
	ok, err := s.quotes.TransitionQuoteStatus(ctx, quote.ID, from, to, reason, now)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"quote_id": quote.ID,
			"to":       to,
		}).Error("failed to transition quote")
		return apperr.Internal("failed to update quote status", err)
	}
	if !ok {
		current, err := s.loadQuote(ctx, quote.ID)
		if err != nil {
			return err
		}
		return apperr.InvalidStateTransition("quote", string(current.Status), string(to))
	}

	metrics.RecordQuoteTransition(string(quote.Status), string(to))
	quote.Status = to
	quote.StatusReason = reason
	quote.UpdatedAt = now
	return nil
}

func (s *QuoteService) storeError(err error, resource, message string) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound(resource)
	}
	s.logger.WithError(err).Error(message)
	return apperr.Internal(message, err)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
