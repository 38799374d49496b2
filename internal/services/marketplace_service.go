package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/models"
)

const defaultJobLifetimeDays = 14

type MarketplaceJobService struct {
	store  MarketplaceStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewMarketplaceJobService(store MarketplaceStore, logger *logrus.Logger) *MarketplaceJobService {
	return &MarketplaceJobService{store: store, logger: logger, now: time.Now}
}

func (s *MarketplaceJobService) WithClock(now func() time.Time) *MarketplaceJobService {
	s.now = now
	return s
}

func (s *MarketplaceJobService) CreateJob(ctx context.Context, clientID uuid.UUID, req models.CreateMarketplaceJobRequest) (*models.MarketplaceJob, error) {
	now := s.now()
	if err := validateJobFields(req.UrgencyLevel, req.EstimatedBudget, req.DateRequired, now); err != nil {
		return nil, err
	}

	days := req.ExpiresInDays
	if days <= 0 {
		days = defaultJobLifetimeDays
	}

	job := &models.MarketplaceJob{
		ID:              uuid.New(),
		ClientID:        clientID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		JobType:         strings.ToLower(strings.TrimSpace(req.JobType)),
		UrgencyLevel:    req.UrgencyLevel,
		Status:          models.MarketplaceJobAvailable,
		EstimatedBudget: req.EstimatedBudget.Round(2),
		Location:        req.Location,
		DateRequired:    req.DateRequired,
		ExpiresAt:       now.AddDate(0, 0, days),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateMarketplaceJob(ctx, job); err != nil {
		s.logger.WithError(err).WithField("client_id", clientID).Error("failed to create marketplace job")
		return nil, apperr.Internal("failed to create marketplace job", err)
	}
	return job, nil
}

func validateJobFields(urgency models.UrgencyLevel, budget decimal.Decimal, dateRequired *time.Time, now time.Time) error {
	fields := make(map[string]string)
	if !urgency.Valid() {
		fields["urgency_level"] = "urgency must be low, medium, high or emergency"
	}
	if budget.IsNegative() {
		fields["estimated_budget"] = "estimated budget cannot be negative"
	}
	if dateRequired != nil && dateRequired.Before(now.Truncate(24*time.Hour)) {
		fields["date_required"] = "date required cannot be in the past"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid marketplace job", fields)
	}
	return nil
}

func (s *MarketplaceJobService) GetJob(ctx context.Context, id uuid.UUID) (*models.MarketplaceJob, error) {
	job, err := s.store.GetMarketplaceJob(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("marketplace job")
		}
		return nil, apperr.Internal("failed to load marketplace job", err)
	}
	return job, nil
}

func (s *MarketplaceJobService) ListAvailable(ctx context.Context, filter models.MarketplaceJobFilter) ([]models.MarketplaceJob, error) {
	filter.JobType = strings.ToLower(strings.TrimSpace(filter.JobType))
	filter.Limit, filter.Offset = page(filter.Limit, filter.Offset)

	jobs, err := s.store.ListAvailableJobs(ctx, filter, s.now())
	if err != nil {
		return nil, apperr.Internal("failed to list marketplace jobs", err)
	}
	return jobs, nil
}

// UpdateJob edits a job while it is still open for applications.
func (s *MarketplaceJobService) UpdateJob(ctx context.Context, id, clientID uuid.UUID, req models.UpdateMarketplaceJobRequest) (*models.MarketplaceJob, error) {
	job, err := s.ownedJob(ctx, id, clientID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !job.IsOpenAt(now) {
		return nil, apperr.StateConflict("jobs can only be modified while available and not expired", string(job.Status))
	}

	if req.Title != nil {
		job.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		job.Description = *req.Description
	}
	if req.UrgencyLevel != nil {
		job.UrgencyLevel = *req.UrgencyLevel
	}
	if req.EstimatedBudget != nil {
		job.EstimatedBudget = req.EstimatedBudget.Round(2)
	}
	if req.Location != nil {
		job.Location = *req.Location
	}
	if req.DateRequired != nil {
		job.DateRequired = req.DateRequired
	}
	if err := validateJobFields(job.UrgencyLevel, job.EstimatedBudget, req.DateRequired, now); err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateMarketplaceJob(ctx, job, now)
	if err != nil {
		return nil, apperr.Internal("failed to update marketplace job", err)
	}
	if !ok {
		return nil, apperr.StateConflict("jobs can only be modified while available and not expired", string(job.Status))
	}
	return s.GetJob(ctx, id)
}

func (s *MarketplaceJobService) DeleteJob(ctx context.Context, id, clientID uuid.UUID) error {
	job, err := s.ownedJob(ctx, id, clientID)
	if err != nil {
		return err
	}

	ok, err := s.store.DeleteMarketplaceJob(ctx, id)
	if err != nil {
		return apperr.Internal("failed to delete marketplace job", err)
	}
	if !ok {
		return apperr.StateConflict("cannot delete a job with existing applications", string(job.Status))
	}
	return nil
}

func (s *MarketplaceJobService) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.store.ExpireOverdueJobs(ctx, s.now())
}

func (s *MarketplaceJobService) ownedJob(ctx context.Context, id, clientID uuid.UUID) (*models.MarketplaceJob, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.ClientID != clientID {
		return nil, apperr.UnauthorizedAccess("you do not own this job")
	}
	return job, nil
}
