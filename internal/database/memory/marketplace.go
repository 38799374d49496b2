package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/models"
)

func copyApplication(a models.JobApplication) *models.JobApplication {
	a.AvailabilityDates = append([]string(nil), a.AvailabilityDates...)
	return &a
}

func (s *Store) CreateMarketplaceJob(ctx context.Context, job *models.MarketplaceJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.marketJobs[job.ID]; exists {
		return database.ErrDuplicate
	}
	s.marketJobs[job.ID] = *job
	return nil
}

func (s *Store) GetMarketplaceJob(ctx context.Context, id uuid.UUID) (*models.MarketplaceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.marketJobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &job, nil
}

func (s *Store) ListAvailableJobs(ctx context.Context, filter models.MarketplaceJobFilter, now time.Time) ([]models.MarketplaceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := []models.MarketplaceJob{}
	for _, job := range s.marketJobs {
		if !job.IsOpenAt(now) {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return paginate(jobs, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateMarketplaceJob(ctx context.Context, job *models.MarketplaceJob, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.marketJobs[job.ID]
	if !ok || !stored.IsOpenAt(now) {
		return false, nil
	}
	stored.Title = job.Title
	stored.Description = job.Description
	stored.UrgencyLevel = job.UrgencyLevel
	stored.EstimatedBudget = job.EstimatedBudget
	stored.Location = job.Location
	stored.DateRequired = job.DateRequired
	stored.UpdatedAt = now
	s.marketJobs[job.ID] = stored
	return true, nil
}

func (s *Store) DeleteMarketplaceJob(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.marketJobs[id]; !ok {
		return false, nil
	}
	for _, app := range s.applications {
		if app.MarketplaceJobID == id {
			return false, nil
		}
	}
	delete(s.marketJobs, id)
	return true, nil
}

func (s *Store) ExpireOverdueJobs(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, job := range s.marketJobs {
		if job.Status == models.MarketplaceJobAvailable && !now.Before(job.ExpiresAt) {
			job.Status = models.MarketplaceJobExpired
			job.UpdatedAt = now
			s.marketJobs[id] = job
			n++
		}
	}
	return n, nil
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyApplication(app), nil
}

func (s *Store) FindApplication(ctx context.Context, jobID, tradieID uuid.UUID) (*models.JobApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.applications {
		if app.MarketplaceJobID == jobID && app.TradieID == tradieID {
			return copyApplication(app), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) listApplications(match func(models.JobApplication) bool) []models.JobApplication {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps := []models.JobApplication{}
	for _, app := range s.applications {
		if match(app) {
			apps = append(apps, *copyApplication(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ApplicationTimestamp.Before(apps[j].ApplicationTimestamp) })
	return apps
}

func (s *Store) ListApplicationsByTradie(ctx context.Context, tradieID uuid.UUID) ([]models.JobApplication, error) {
	return s.listApplications(func(a models.JobApplication) bool { return a.TradieID == tradieID }), nil
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	return s.listApplications(func(a models.JobApplication) bool { return a.MarketplaceJobID == jobID }), nil
}

func (s *Store) CreateApplication(ctx context.Context, app *models.JobApplication, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.marketJobs[app.MarketplaceJobID]
	if !ok {
		return database.ErrNotFound
	}
	if !job.IsOpenAt(now) {
		return database.ErrJobUnavailable
	}
	for _, existing := range s.applications {
		if existing.MarketplaceJobID == app.MarketplaceJobID && existing.TradieID == app.TradieID {
			return database.ErrDuplicate
		}
	}

	if app.CreditsUsed > 0 {
		balance := s.balances[app.TradieID]
		if balance < app.CreditsUsed {
			return database.ErrInsufficientCredits
		}
		ref := app.ID
		s.applyCreditLocked(app.TradieID, -app.CreditsUsed, models.CreditApplicationDebit, "job application", &ref, now)
	}

	s.applications[app.ID] = *copyApplication(*app)
	job.ApplicationCount++
	job.UpdatedAt = now
	s.marketJobs[job.ID] = job
	return nil
}

func (s *Store) WithdrawApplication(ctx context.Context, id uuid.UUID, reason string, refund int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok || !app.IsWithdrawable(now) {
		return false, nil
	}
	app.Status = models.ApplicationWithdrawn
	app.WithdrawalReason = reason
	app.UpdatedAt = now
	s.applications[id] = app

	if refund > 0 {
		ref := id
		s.applyCreditLocked(app.TradieID, refund, models.CreditWithdrawalRefund, "application withdrawn", &ref, now)
	}

	if job, ok := s.marketJobs[app.MarketplaceJobID]; ok && job.ApplicationCount > 0 {
		job.ApplicationCount--
		job.UpdatedAt = now
		s.marketJobs[job.ID] = job
	}
	return true, nil
}

func (s *Store) TransitionApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok || app.Status != from {
		return false, nil
	}
	app.Status = to
	app.StatusReason = reason
	app.UpdatedAt = now
	s.applications[id] = app
	return true, nil
}

func (s *Store) SelectApplication(ctx context.Context, id, jobID uuid.UUID, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok || app.Status != models.ApplicationUnderReview {
		return false, nil
	}
	job, ok := s.marketJobs[jobID]
	if !ok || job.Status != models.MarketplaceJobAvailable {
		return false, database.ErrJobUnavailable
	}

	app.Status = models.ApplicationSelected
	app.StatusReason = reason
	app.UpdatedAt = now
	s.applications[id] = app

	job.Status = models.MarketplaceJobFilled
	job.UpdatedAt = now
	s.marketJobs[jobID] = job
	return true, nil
}
