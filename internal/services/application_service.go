package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/metrics"
	"tradiehub-backend/internal/models"
)

const defaultCostRow = "default"

// CreditCostTable prices an application by job type and urgency. Job types
// without their own row use the "default" row.
type CreditCostTable map[string]map[models.UrgencyLevel]int

var DefaultCreditCosts = CreditCostTable{
	defaultCostRow: {models.UrgencyLow: 2, models.UrgencyMedium: 3, models.UrgencyHigh: 5, models.UrgencyEmergency: 8},
	"electrical":   {models.UrgencyLow: 3, models.UrgencyMedium: 4, models.UrgencyHigh: 6, models.UrgencyEmergency: 10},
	"plumbing":     {models.UrgencyLow: 3, models.UrgencyMedium: 4, models.UrgencyHigh: 6, models.UrgencyEmergency: 10},
	"roofing":      {models.UrgencyLow: 4, models.UrgencyMedium: 5, models.UrgencyHigh: 7, models.UrgencyEmergency: 12},
	"cleaning":     {models.UrgencyLow: 1, models.UrgencyMedium: 2, models.UrgencyHigh: 3, models.UrgencyEmergency: 5},
}

func (t CreditCostTable) Cost(jobType string, urgency models.UrgencyLevel) int {
	if row, ok := t[strings.ToLower(jobType)]; ok {
		if cost, ok := row[urgency]; ok {
			return cost
		}
	}
	if cost, ok := t[defaultCostRow][urgency]; ok {
		return cost
	}
	return t[defaultCostRow][models.UrgencyMedium]
}

type ApplicationService struct {
	store        ApplicationStore
	costs        CreditCostTable
	allowRefunds bool
	logger       *logrus.Logger
	now          func() time.Time
}

func NewApplicationService(store ApplicationStore, costs CreditCostTable, allowRefunds bool, logger *logrus.Logger) *ApplicationService {
	if costs == nil {
		costs = DefaultCreditCosts
	}
	return &ApplicationService{
		store:        store,
		costs:        costs,
		allowRefunds: allowRefunds,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *ApplicationService) WithClock(now func() time.Time) *ApplicationService {
	s.now = now
	return s
}

// ValidateApplicationEligibility reports every reason the tradie cannot apply.
// Business rules never produce an error, only infrastructure failures do.
func (s *ApplicationService) ValidateApplicationEligibility(ctx context.Context, tradieID, jobID uuid.UUID) (*models.EligibilityResult, error) {
	job, err := s.store.GetMarketplaceJob(ctx, jobID)
	if err != nil {
		return nil, s.storeError(err, "marketplace job", "failed to load marketplace job")
	}

	now := s.now()
	reasons := []string{}
	if job.Status != models.MarketplaceJobAvailable {
		reasons = append(reasons, models.ReasonJobNotAvailable)
	} else if !now.Before(job.ExpiresAt) {
		reasons = append(reasons, models.ReasonJobExpired)
	}
	if job.ClientID == tradieID {
		reasons = append(reasons, models.ReasonOwnJob)
	}

	_, err = s.store.FindApplication(ctx, jobID, tradieID)
	switch {
	case err == nil:
		reasons = append(reasons, models.ReasonAlreadyApplied)
	case !errors.Is(err, database.ErrNotFound):
		return nil, s.storeError(err, "application", "failed to check existing application")
	}

	required := s.costs.Cost(job.JobType, job.UrgencyLevel)
	balance, err := s.store.GetCreditBalance(ctx, tradieID)
	if err != nil {
		return nil, s.storeError(err, "credit balance", "failed to load credit balance")
	}
	if balance < required {
		reasons = append(reasons, models.ReasonInsufficientCredits)
	}

	return &models.EligibilityResult{
		CanApply:        len(reasons) == 0,
		Reasons:         reasons,
		RequiredCredits: required,
		CurrentBalance:  balance,
	}, nil
}

// CreateApplication submits an application and debits its credit cost. The
// storage transaction re-checks the job, the duplicate rule and the balance,
// so a stale eligibility check can never overdraw credits.
func (s *ApplicationService) CreateApplication(ctx context.Context, tradieID uuid.UUID, req models.CreateApplicationRequest) (*models.JobApplication, error) {
	if err := validateApplication(req); err != nil {
		return nil, err
	}

	job, err := s.store.GetMarketplaceJob(ctx, req.MarketplaceJobID)
	if err != nil {
		return nil, s.storeError(err, "marketplace job", "failed to load marketplace job")
	}
	if job.ClientID == tradieID {
		return nil, apperr.UnauthorizedAccess("you cannot apply to your own job")
	}

	now := s.now()
	if !job.IsOpenAt(now) {
		metrics.RecordApplication("job_unavailable")
		return nil, apperr.JobUnavailable("this job is no longer accepting applications")
	}

	cost := s.costs.Cost(job.JobType, job.UrgencyLevel)
	app := &models.JobApplication{
		ID:                   uuid.New(),
		MarketplaceJobID:     job.ID,
		TradieID:             tradieID,
		CustomQuote:          req.CustomQuote.Round(2),
		ProposedTimeline:     req.ProposedTimeline,
		ApproachDescription:  req.ApproachDescription,
		AvailabilityDates:    req.AvailabilityDates,
		CreditsUsed:          cost,
		Status:               models.ApplicationSubmitted,
		ApplicationTimestamp: now,
		UpdatedAt:            now,
	}
	if app.AvailabilityDates == nil {
		app.AvailabilityDates = []string{}
	}

	err = s.store.CreateApplication(ctx, app, now)
	switch {
	case err == nil:
		metrics.RecordApplication("submitted")
		s.logger.WithFields(logrus.Fields{
			"application_id": app.ID,
			"job_id":         job.ID,
			"credits_used":   cost,
		}).Info("application submitted")
		return app, nil
	case errors.Is(err, database.ErrDuplicate):
		metrics.RecordApplication("duplicate")
		return nil, apperr.DuplicateApplication()
	case errors.Is(err, database.ErrInsufficientCredits):
		metrics.RecordApplication("insufficient_credits")
		balance, balanceErr := s.store.GetCreditBalance(ctx, tradieID)
		if balanceErr != nil {
			s.logger.WithError(balanceErr).Warn("failed to load credit balance")
		}
		return nil, apperr.InsufficientCredits(cost, balance)
	case errors.Is(err, database.ErrJobUnavailable):
		metrics.RecordApplication("job_unavailable")
		return nil, apperr.JobUnavailable("this job is no longer accepting applications")
	default:
		return nil, s.storeError(err, "marketplace job", "failed to create application")
	}
}

func validateApplication(req models.CreateApplicationRequest) error {
	fields := make(map[string]string)
	if !req.CustomQuote.IsPositive() {
		fields["custom_quote"] = "custom quote must be greater than 0"
	}
	for i, d := range req.AvailabilityDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			fields[fmt.Sprintf("availability_dates[%d]", i)] = "dates must use YYYY-MM-DD"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid application", fields)
	}
	return nil
}

// WithdrawApplication withdraws a submitted application inside its 24 hour
// window. Credits are returned only when requested and enabled.
func (s *ApplicationService) WithdrawApplication(ctx context.Context, appID, tradieID uuid.UUID, req models.WithdrawApplicationRequest) (*models.JobApplication, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.TradieID != tradieID {
		return nil, apperr.UnauthorizedAccess("you do not own this application")
	}

	now := s.now()
	if err := withdrawable(app, now); err != nil {
		return nil, err
	}

	refund := 0
	if req.RefundCredits && s.allowRefunds {
		refund = app.CreditsUsed
	}

	ok, err := s.store.WithdrawApplication(ctx, appID, req.Reason, refund, now)
	if err != nil {
		return nil, s.storeError(err, "application", "failed to withdraw application")
	}
	if !ok {
		current, err := s.loadApplication(ctx, appID)
		if err != nil {
			return nil, err
		}
		if err := withdrawable(current, now); err != nil {
			return nil, err
		}
		return nil, apperr.WithdrawalNotAllowed("application can no longer be withdrawn")
	}

	metrics.RecordApplication("withdrawn")
	return s.loadApplication(ctx, appID)
}

func withdrawable(app *models.JobApplication, now time.Time) error {
	if app.Status != models.ApplicationSubmitted {
		return apperr.WithdrawalNotAllowed(fmt.Sprintf("only submitted applications can be withdrawn, this one is %s", app.Status))
	}
	if !app.IsWithdrawable(now) {
		return apperr.WithdrawalNotAllowed(fmt.Sprintf("the withdrawal window closed at %s", app.WithdrawalDeadline().Format(time.RFC3339)))
	}
	return nil
}

// UpdateApplicationStatus applies one transition. The job's client or an
// admin reviews, selects and rejects; only the applying tradie withdraws.
func (s *ApplicationService) UpdateApplicationStatus(ctx context.Context, appID uuid.UUID, status string, actor models.Actor, reason string) (*models.JobApplication, error) {
	target, ok := models.ParseApplicationStatus(status)
	if !ok {
		return nil, apperr.ValidationField("status", "unknown application status")
	}

	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}

	if target == models.ApplicationWithdrawn {
		if actor.UserID != app.TradieID && !actor.IsAdmin() {
			return nil, apperr.UnauthorizedAccess("only the applicant can withdraw an application")
		}
		return s.WithdrawApplication(ctx, appID, app.TradieID, models.WithdrawApplicationRequest{Reason: reason})
	}

	job, err := s.store.GetMarketplaceJob(ctx, app.MarketplaceJobID)
	if err != nil {
		return nil, s.storeError(err, "marketplace job", "failed to load marketplace job")
	}
	if !actor.IsAdmin() && actor.UserID != job.ClientID {
		return nil, apperr.UnauthorizedAccess("only the job owner can review applications")
	}

	if !app.Status.CanTransitionTo(target) {
		return nil, apperr.InvalidStateTransition("application", string(app.Status), string(target))
	}

	now := s.now()
	if target == models.ApplicationSelected {
		ok, err = s.store.SelectApplication(ctx, appID, job.ID, reason, now)
		if errors.Is(err, database.ErrJobUnavailable) {
			return nil, apperr.JobUnavailable("this job is no longer open for selection")
		}
	} else {
		ok, err = s.store.TransitionApplicationStatus(ctx, appID, app.Status, target, reason, now)
	}
	if err != nil {
		return nil, s.storeError(err, "application", "failed to update application status")
	}
	if !ok {
		current, err := s.loadApplication(ctx, appID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidStateTransition("application", string(current.Status), string(target))
	}

	metrics.RecordApplication(string(target))
	return s.loadApplication(ctx, appID)
}

// BulkUpdateStatus applies the same transition to each application on its
// own. One failure does not stop or undo the others.
func (s *ApplicationService) BulkUpdateStatus(ctx context.Context, req models.BulkApplicationStatusRequest, actor models.Actor) (*models.BulkStatusResult, error) {
	if _, ok := models.ParseApplicationStatus(req.Status); !ok {
		return nil, apperr.ValidationField("status", "unknown application status")
	}

	result := &models.BulkStatusResult{Results: make([]models.BulkStatusItemResult, 0, len(req.ApplicationIDs))}
	seen := make(map[uuid.UUID]bool, len(req.ApplicationIDs))
	for _, id := range req.ApplicationIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		item := models.BulkStatusItemResult{ApplicationID: id}
		app, err := s.UpdateApplicationStatus(ctx, id, req.Status, actor, req.Reason)
		if err != nil {
			appErr := apperr.From(err)
			item.Code = string(appErr.Kind)
			item.Error = appErr.Message
			result.Failed++
		} else {
			item.Success = true
			item.Status = app.Status
			result.Updated++
		}
		result.Results = append(result.Results, item)
	}
	return result, nil
}

// GetApplication is visible to the applicant, the job's client and admins.
func (s *ApplicationService) GetApplication(ctx context.Context, appID uuid.UUID, actor models.Actor) (*models.JobApplication, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || app.TradieID == actor.UserID {
		return app, nil
	}

	job, err := s.store.GetMarketplaceJob(ctx, app.MarketplaceJobID)
	if err != nil {
		return nil, s.storeError(err, "marketplace job", "failed to load marketplace job")
	}
	if job.ClientID != actor.UserID {
		return nil, apperr.UnauthorizedAccess("you do not have access to this application")
	}
	return app, nil
}

func (s *ApplicationService) ListTradieApplications(ctx context.Context, tradieID uuid.UUID) ([]models.JobApplication, error) {
	apps, err := s.store.ListApplicationsByTradie(ctx, tradieID)
	if err != nil {
		return nil, s.storeError(err, "applications", "failed to list applications")
	}
	return apps, nil
}

func (s *ApplicationService) ListJobApplications(ctx context.Context, jobID uuid.UUID, actor models.Actor) ([]models.JobApplication, error) {
	job, err := s.store.GetMarketplaceJob(ctx, jobID)
	if err != nil {
		return nil, s.storeError(err, "marketplace job", "failed to load marketplace job")
	}
	if !actor.IsAdmin() && job.ClientID != actor.UserID {
		return nil, apperr.UnauthorizedAccess("only the job owner can list its applications")
	}

	apps, err := s.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, s.storeError(err, "applications", "failed to list applications")
	}
	return apps, nil
}

func (s *ApplicationService) loadApplication(ctx context.Context, appID uuid.UUID) (*models.JobApplication, error) {
	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, s.storeError(err, "application", "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) storeError(err error, resource, message string) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound(resource)
	}
	s.logger.WithError(err).Error(message)
	return apperr.Internal(message, err)
}
