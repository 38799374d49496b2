package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/database/memory"
	"tradiehub-backend/internal/logging"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/services"
)

type marketFixture struct {
	store   *memory.Store
	jobs    *services.MarketplaceJobService
	apps    *services.ApplicationService
	credits *services.CreditService
	clock   *clock
	client  uuid.UUID
	tradie  uuid.UUID
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	f := &marketFixture{
		store:  memory.New(),
		clock:  &clock{now: baseTime},
		client: uuid.New(),
		tradie: uuid.New(),
	}
	logger := logging.Discard()
	f.jobs = services.NewMarketplaceJobService(f.store, logger).WithClock(f.clock.Now)
	f.apps = services.NewApplicationService(f.store, nil, true, logger).WithClock(f.clock.Now)
	f.credits = services.NewCreditService(f.store, logger)
	return f
}

func (f *marketFixture) postJob(t *testing.T, jobType string, urgency models.UrgencyLevel) *models.MarketplaceJob {
	t.Helper()
	job, err := f.jobs.CreateJob(context.Background(), f.client, models.CreateMarketplaceJobRequest{
		Title:           "Replace switchboard",
		Description:     "Old ceramic fuses need replacing with a modern board.",
		JobType:         jobType,
		UrgencyLevel:    urgency,
		EstimatedBudget: decimal.NewFromInt(1500),
		Location:        "Brunswick VIC",
	})
	require.NoError(t, err)
	return job
}

func (f *marketFixture) grant(t *testing.T, tradieID uuid.UUID, amount int) {
	t.Helper()
	_, err := f.store.GrantCredits(context.Background(), tradieID, amount, "starter pack", f.clock.Now())
	require.NoError(t, err)
}

func (f *marketFixture) balance(t *testing.T, tradieID uuid.UUID) int {
	t.Helper()
	balance, err := f.credits.Balance(context.Background(), tradieID)
	require.NoError(t, err)
	return balance.Balance
}

func applicationRequest(jobID uuid.UUID) models.CreateApplicationRequest {
	return models.CreateApplicationRequest{
		MarketplaceJobID:    jobID,
		CustomQuote:         decimal.RequireFromString("1350.00"),
		ProposedTimeline:    "Two days next week",
		ApproachDescription: "Isolate supply, swap the board and test every circuit.",
		AvailabilityDates:   []string{"2025-03-12", "2025-03-13"},
	}
}

func (f *marketFixture) apply(t *testing.T, tradieID, jobID uuid.UUID) *models.JobApplication {
	t.Helper()
	app, err := f.apps.CreateApplication(context.Background(), tradieID, applicationRequest(jobID))
	require.NoError(t, err)
	return app
}

func TestCreditCostTable(t *testing.T) {
	costs := services.DefaultCreditCosts

	assert.Equal(t, 4, costs.Cost("electrical", models.UrgencyMedium))
	assert.Equal(t, 12, costs.Cost("Roofing", models.UrgencyEmergency))
	assert.Equal(t, 1, costs.Cost("cleaning", models.UrgencyLow))
	assert.Equal(t, 5, costs.Cost("carpentry", models.UrgencyHigh))
	assert.Equal(t, 3, costs.Cost("carpentry", "unknown"))
}

func TestCreateApplication_DebitsCredits(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)

	app := f.apply(t, f.tradie, job.ID)

	assert.Equal(t, models.ApplicationSubmitted, app.Status)
	assert.Equal(t, 4, app.CreditsUsed)
	assert.Equal(t, 6, f.balance(t, f.tradie))

	stored, err := f.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ApplicationCount)

	txns, err := f.credits.Transactions(context.Background(), f.tradie, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	var debit *models.CreditTransaction
	for i := range txns {
		if txns[i].Kind == models.CreditApplicationDebit {
			debit = &txns[i]
		}
	}
	require.NotNil(t, debit)
	assert.Equal(t, -4, debit.Amount)
	assert.Equal(t, 6, debit.BalanceAfter)
	assert.Equal(t, app.ID, *debit.ReferenceID)
}

func TestCreateApplication_InsufficientCredits(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "carpentry", models.UrgencyHigh)
	f.grant(t, f.tradie, 3)

	_, err := f.apps.CreateApplication(context.Background(), f.tradie, applicationRequest(job.ID))

	require.ErrorIs(t, err, apperr.ErrInsufficientCredits)
	details := apperr.From(err).Details
	assert.Equal(t, 5, details["required_credits"])
	assert.Equal(t, 3, details["current_balance"])
	assert.Equal(t, 3, f.balance(t, f.tradie))

	apps, err := f.apps.ListTradieApplications(context.Background(), f.tradie)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestCreateApplication_Duplicate(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	f.apply(t, f.tradie, job.ID)

	_, err := f.apps.CreateApplication(context.Background(), f.tradie, applicationRequest(job.ID))

	require.ErrorIs(t, err, apperr.ErrDuplicateApplication)
	assert.Equal(t, 6, f.balance(t, f.tradie))
}

func TestCreateApplication_ConcurrentDuplicatesDebitOnce(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 20)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.apps.CreateApplication(context.Background(), f.tradie, applicationRequest(job.ID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrDuplicateApplication)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 16, f.balance(t, f.tradie))
}

func TestCreateApplication_Rejections(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	f.grant(t, f.tradie, 50)

	t.Run("non-positive quote", func(t *testing.T) {
		job := f.postJob(t, "plumbing", models.UrgencyLow)
		req := applicationRequest(job.ID)
		req.CustomQuote = decimal.Zero

		_, err := f.apps.CreateApplication(ctx, f.tradie, req)

		require.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, apperr.From(err).Fields, "custom_quote")
	})

	t.Run("own job", func(t *testing.T) {
		job := f.postJob(t, "plumbing", models.UrgencyLow)
		_, err := f.apps.CreateApplication(ctx, f.client, applicationRequest(job.ID))
		assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := f.apps.CreateApplication(ctx, f.tradie, applicationRequest(uuid.New()))
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("expired job", func(t *testing.T) {
		job := f.postJob(t, "plumbing", models.UrgencyLow)
		f.clock.Advance(15 * 24 * time.Hour)
		defer f.clock.Advance(-15 * 24 * time.Hour)

		_, err := f.apps.CreateApplication(ctx, f.tradie, applicationRequest(job.ID))
		assert.ErrorIs(t, err, apperr.ErrJobUnavailable)
	})
}

func TestValidateApplicationEligibility(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "roofing", models.UrgencyHigh)
	f.grant(t, f.tradie, 5)

	result, err := f.apps.ValidateApplicationEligibility(ctx, f.tradie, job.ID)
	require.NoError(t, err)
	assert.False(t, result.CanApply)
	assert.Equal(t, []string{models.ReasonInsufficientCredits}, result.Reasons)
	assert.Equal(t, 7, result.RequiredCredits)
	assert.Equal(t, 5, result.CurrentBalance)

	f.grant(t, f.tradie, 5)
	result, err = f.apps.ValidateApplicationEligibility(ctx, f.tradie, job.ID)
	require.NoError(t, err)
	assert.True(t, result.CanApply)
	assert.Empty(t, result.Reasons)

	f.apply(t, f.tradie, job.ID)
	f.clock.Advance(15 * 24 * time.Hour)
	result, err = f.apps.ValidateApplicationEligibility(ctx, f.tradie, job.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.ReasonJobExpired, models.ReasonAlreadyApplied, models.ReasonInsufficientCredits}, result.Reasons)

	_, err = f.apps.ValidateApplicationEligibility(ctx, f.tradie, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWithdrawApplication_InsideWindowRefunds(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	app := f.apply(t, f.tradie, job.ID)
	f.clock.Advance(23 * time.Hour)

	withdrawn, err := f.apps.WithdrawApplication(context.Background(), app.ID, f.tradie, models.WithdrawApplicationRequest{
		Reason:        "booked elsewhere",
		RefundCredits: true,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ApplicationWithdrawn, withdrawn.Status)
	assert.Equal(t, "booked elsewhere", withdrawn.WithdrawalReason)
	assert.Equal(t, 10, f.balance(t, f.tradie))

	stored, err := f.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ApplicationCount)
}

func TestWithdrawApplication_WithoutRefundKeepsDebit(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	app := f.apply(t, f.tradie, job.ID)

	_, err := f.apps.WithdrawApplication(context.Background(), app.ID, f.tradie, models.WithdrawApplicationRequest{})

	require.NoError(t, err)
	assert.Equal(t, 6, f.balance(t, f.tradie))
}

func TestWithdrawApplication_AfterWindow(t *testing.T) {
	f := newMarketFixture(t)
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	app := f.apply(t, f.tradie, job.ID)
	f.clock.Advance(25 * time.Hour)

	_, err := f.apps.WithdrawApplication(context.Background(), app.ID, f.tradie, models.WithdrawApplicationRequest{RefundCredits: true})

	require.ErrorIs(t, err, apperr.ErrWithdrawalNotAllowed)
	stored, err := f.apps.GetApplication(context.Background(), app.ID, models.Actor{UserID: f.tradie, Role: models.RoleTradie})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationSubmitted, stored.Status)
	assert.Equal(t, 6, f.balance(t, f.tradie))
}

func TestWithdrawApplication_OnlySubmitted(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	app := f.apply(t, f.tradie, job.ID)
	_, err := f.apps.UpdateApplicationStatus(ctx, app.ID, "under_review", models.Actor{UserID: f.client, Role: models.RoleClient}, "")
	require.NoError(t, err)

	_, err = f.apps.WithdrawApplication(ctx, app.ID, f.tradie, models.WithdrawApplicationRequest{})
	assert.ErrorIs(t, err, apperr.ErrWithdrawalNotAllowed)

	_, err = f.apps.WithdrawApplication(ctx, app.ID, uuid.New(), models.WithdrawApplicationRequest{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
}

func TestUpdateApplicationStatus_SelectionFillsJob(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	owner := models.Actor{UserID: f.client, Role: models.RoleClient}
	job := f.postJob(t, "electrical", models.UrgencyMedium)

	other := uuid.New()
	f.grant(t, f.tradie, 10)
	f.grant(t, other, 10)
	first := f.apply(t, f.tradie, job.ID)
	second := f.apply(t, other, job.ID)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		_, err := f.apps.UpdateApplicationStatus(ctx, id, "under_review", owner, "")
		require.NoError(t, err)
	}

	selected, err := f.apps.UpdateApplicationStatus(ctx, first.ID, "selected", owner, "best approach")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationSelected, selected.Status)
	assert.Equal(t, "best approach", selected.StatusReason)

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketplaceJobFilled, stored.Status)

	_, err = f.apps.UpdateApplicationStatus(ctx, second.ID, "selected", owner, "")
	assert.ErrorIs(t, err, apperr.ErrJobUnavailable)

	rejected, err := f.apps.UpdateApplicationStatus(ctx, second.ID, "rejected", owner, "position filled")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, rejected.Status)
}

func TestUpdateApplicationStatus_Rules(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	owner := models.Actor{UserID: f.client, Role: models.RoleClient}
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	app := f.apply(t, f.tradie, job.ID)

	t.Run("skipping review", func(t *testing.T) {
		_, err := f.apps.UpdateApplicationStatus(ctx, app.ID, "selected", owner, "")
		require.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
		assert.Equal(t, "submitted", apperr.From(err).Details["current_status"])
	})

	t.Run("not the job owner", func(t *testing.T) {
		_, err := f.apps.UpdateApplicationStatus(ctx, app.ID, "under_review", models.Actor{UserID: uuid.New(), Role: models.RoleClient}, "")
		assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
	})

	t.Run("admin may review", func(t *testing.T) {
		updated, err := f.apps.UpdateApplicationStatus(ctx, app.ID, "under_review", models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, "")
		require.NoError(t, err)
		assert.Equal(t, models.ApplicationUnderReview, updated.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.apps.UpdateApplicationStatus(ctx, app.ID, "shortlisted", owner, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestBulkUpdateStatus_PerItemOutcome(t *testing.T) {
	f := newMarketFixture(t)
	owner := models.Actor{UserID: f.client, Role: models.RoleClient}
	job := f.postJob(t, "electrical", models.UrgencyMedium)

	other := uuid.New()
	f.grant(t, f.tradie, 10)
	f.grant(t, other, 10)
	first := f.apply(t, f.tradie, job.ID)
	second := f.apply(t, other, job.ID)
	missing := uuid.New()

	result, err := f.apps.BulkUpdateStatus(context.Background(), models.BulkApplicationStatusRequest{
		ApplicationIDs: []uuid.UUID{first.ID, missing, second.ID, first.ID},
		Status:         "under_review",
	}, owner)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, models.ApplicationUnderReview, result.Results[0].Status)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, missing, result.Results[1].ApplicationID)
	assert.Equal(t, string(apperr.KindNotFound), result.Results[1].Code)
	assert.True(t, result.Results[2].Success)
}

func TestBulkUpdateStatus_UnknownStatus(t *testing.T) {
	f := newMarketFixture(t)

	_, err := f.apps.BulkUpdateStatus(context.Background(), models.BulkApplicationStatusRequest{
		ApplicationIDs: []uuid.UUID{uuid.New()},
		Status:         "archived",
	}, models.Actor{UserID: f.client, Role: models.RoleClient})

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListJobApplications_OwnerOnly(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	f.apply(t, f.tradie, job.ID)

	apps, err := f.apps.ListJobApplications(ctx, job.ID, models.Actor{UserID: f.client, Role: models.RoleClient})
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	_, err = f.apps.ListJobApplications(ctx, job.ID, models.Actor{UserID: f.tradie, Role: models.RoleTradie})
	assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
}

func TestGetApplication_Visibility(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "electrical", models.UrgencyMedium)
	f.grant(t, f.tradie, 10)
	app := f.apply(t, f.tradie, job.ID)

	_, err := f.apps.GetApplication(ctx, app.ID, models.Actor{UserID: f.client, Role: models.RoleClient})
	assert.NoError(t, err)
	_, err = f.apps.GetApplication(ctx, app.ID, models.Actor{UserID: uuid.New(), Role: models.RoleTradie})
	assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
}

func TestGrantCredits(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	req := models.GrantCreditsRequest{TradieID: f.tradie, Amount: 25, Reason: "promo"}

	_, err := f.credits.Grant(ctx, models.Actor{UserID: f.tradie, Role: models.RoleTradie}, req)
	require.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)

	txn, err := f.credits.Grant(ctx, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, req)
	require.NoError(t, err)
	assert.Equal(t, models.CreditGrant, txn.Kind)
	assert.Equal(t, 25, txn.BalanceAfter)
	assert.Equal(t, 25, f.balance(t, f.tradie))

	req.Amount = 0
	_, err = f.credits.Grant(ctx, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, req)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMarketplaceJobs(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	t.Run("create applies defaults", func(t *testing.T) {
		job := f.postJob(t, " Electrical ", models.UrgencyHigh)
		assert.Equal(t, "electrical", job.JobType)
		assert.Equal(t, models.MarketplaceJobAvailable, job.Status)
		assert.Equal(t, baseTime.AddDate(0, 0, 14), job.ExpiresAt)
	})

	t.Run("create rejects bad fields", func(t *testing.T) {
		past := baseTime.AddDate(0, 0, -2)
		_, err := f.jobs.CreateJob(ctx, f.client, models.CreateMarketplaceJobRequest{
			Title:           "Fix gutter",
			Description:     "Gutter is sagging at the corner.",
			JobType:         "roofing",
			UrgencyLevel:    "whenever",
			EstimatedBudget: decimal.NewFromInt(-1),
			DateRequired:    &past,
		})
		require.ErrorIs(t, err, apperr.ErrValidation)
		fields := apperr.From(err).Fields
		assert.Contains(t, fields, "urgency_level")
		assert.Contains(t, fields, "estimated_budget")
		assert.Contains(t, fields, "date_required")
	})

	t.Run("update by owner", func(t *testing.T) {
		job := f.postJob(t, "plumbing", models.UrgencyLow)
		title := "Replace hot water system"
		budget := decimal.RequireFromString("2200.456")

		updated, err := f.jobs.UpdateJob(ctx, job.ID, f.client, models.UpdateMarketplaceJobRequest{
			Title:           &title,
			EstimatedBudget: &budget,
		})
		require.NoError(t, err)
		assert.Equal(t, title, updated.Title)
		assert.Equal(t, "2200.46", updated.EstimatedBudget.StringFixed(2))

		_, err = f.jobs.UpdateJob(ctx, job.ID, uuid.New(), models.UpdateMarketplaceJobRequest{Title: &title})
		assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
	})

	t.Run("delete blocked by applications", func(t *testing.T) {
		job := f.postJob(t, "cleaning", models.UrgencyLow)
		f.grant(t, f.tradie, 5)
		f.apply(t, f.tradie, job.ID)

		err := f.jobs.DeleteJob(ctx, job.ID, f.client)
		assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

		empty := f.postJob(t, "cleaning", models.UrgencyLow)
		require.NoError(t, f.jobs.DeleteJob(ctx, empty.ID, f.client))
		_, err = f.jobs.GetJob(ctx, empty.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("listing filters by type", func(t *testing.T) {
		jobs, err := f.jobs.ListAvailable(ctx, models.MarketplaceJobFilter{JobType: "PLUMBING"})
		require.NoError(t, err)
		require.NotEmpty(t, jobs)
		for _, job := range jobs {
			assert.Equal(t, "plumbing", job.JobType)
		}
	})
}

func TestMarketplaceJobs_ExpireOverdue(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	job := f.postJob(t, "plumbing", models.UrgencyLow)

	f.clock.Advance(15 * 24 * time.Hour)
	n, err := f.jobs.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketplaceJobExpired, stored.Status)

	title := "Too late"
	_, err = f.jobs.UpdateJob(ctx, job.ID, f.client, models.UpdateMarketplaceJobRequest{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}
