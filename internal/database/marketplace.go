package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"tradiehub-backend/internal/models"
)

const marketplaceJobColumns = `id, client_id, title, description, job_type, urgency_level, status, estimated_budget,
	location, date_required, expires_at, application_count, created_at, updated_at`

const applicationColumns = `id, marketplace_job_id, tradie_id, custom_quote, proposed_timeline, approach_description,
	availability_dates, credits_used, status, status_reason, withdrawal_reason, application_timestamp, updated_at`

func (s *Store) CreateMarketplaceJob(ctx context.Context, job *models.MarketplaceJob) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO marketplace_jobs (`+marketplaceJobColumns+`)
		VALUES (:id, :client_id, :title, :description, :job_type, :urgency_level, :status, :estimated_budget,
			:location, :date_required, :expires_at, :application_count, :created_at, :updated_at)
	`, job)
	if err != nil {
		return fmt.Errorf("failed to create marketplace job: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetMarketplaceJob(ctx context.Context, id uuid.UUID) (*models.MarketplaceJob, error) {
	var job models.MarketplaceJob
	if err := s.db.GetContext(ctx, &job, `SELECT `+marketplaceJobColumns+` FROM marketplace_jobs WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &job, nil
}

func (s *Store) ListAvailableJobs(ctx context.Context, filter models.MarketplaceJobFilter, now time.Time) ([]models.MarketplaceJob, error) {
	query := `SELECT ` + marketplaceJobColumns + ` FROM marketplace_jobs WHERE status = 'available' AND expires_at > $1`
	args := []interface{}{now}
	if filter.JobType != "" {
		args = append(args, filter.JobType)
		query += fmt.Sprintf(" AND job_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	jobs := []models.MarketplaceJob{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list marketplace jobs: %w", err)
	}
	return jobs, nil
}

// UpdateMarketplaceJob writes the editable fields while the job is still open.
func (s *Store) UpdateMarketplaceJob(ctx context.Context, job *models.MarketplaceJob, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE marketplace_jobs
		SET title = $2, description = $3, urgency_level = $4, estimated_budget = $5, location = $6,
			date_required = $7, updated_at = $8
		WHERE id = $1 AND status = 'available' AND expires_at > $8
	`, job.ID, job.Title, job.Description, string(job.UrgencyLevel), job.EstimatedBudget, job.Location,
		job.DateRequired, now)
	if err != nil {
		return false, fmt.Errorf("failed to update marketplace job: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteMarketplaceJob removes a job that has never received an application.
func (s *Store) DeleteMarketplaceJob(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM marketplace_jobs
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM job_applications WHERE marketplace_job_id = $1)
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete marketplace job: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ExpireOverdueJobs(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE marketplace_jobs SET status = 'expired', updated_at = $1
		WHERE status = 'available' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire marketplace jobs: %w", err)
	}
	return rowsAffected(result)
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	var app models.JobApplication
	if err := s.db.GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM job_applications WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &app, nil
}

func (s *Store) FindApplication(ctx context.Context, jobID, tradieID uuid.UUID) (*models.JobApplication, error) {
	var app models.JobApplication
	err := s.db.GetContext(ctx, &app, `
		SELECT `+applicationColumns+` FROM job_applications WHERE marketplace_job_id = $1 AND tradie_id = $2
	`, jobID, tradieID)
	if err != nil {
		return nil, mapError(err)
	}
	return &app, nil
}

func (s *Store) ListApplicationsByTradie(ctx context.Context, tradieID uuid.UUID) ([]models.JobApplication, error) {
	apps := []models.JobApplication{}
	err := s.db.SelectContext(ctx, &apps, `
		SELECT `+applicationColumns+` FROM job_applications WHERE tradie_id = $1 ORDER BY application_timestamp DESC
	`, tradieID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	apps := []models.JobApplication{}
	err := s.db.SelectContext(ctx, &apps, `
		SELECT `+applicationColumns+` FROM job_applications WHERE marketplace_job_id = $1 ORDER BY application_timestamp
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// CreateApplication re-checks the job, rejects duplicates and debits credits
// in the same transaction as the insert.
func (s *Store) CreateApplication(ctx context.Context, app *models.JobApplication, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var job struct {
			Status    string    `db:"status"`
			ExpiresAt time.Time `db:"expires_at"`
		}
		if err := tx.GetContext(ctx, &job, `
			SELECT status, expires_at FROM marketplace_jobs WHERE id = $1 FOR UPDATE
		`, app.MarketplaceJobID); err != nil {
			return mapError(err)
		}
		if job.Status != string(models.MarketplaceJobAvailable) || !now.Before(job.ExpiresAt) {
			return ErrJobUnavailable
		}

		result, err := tx.NamedExecContext(ctx, `
			INSERT INTO job_applications (`+applicationColumns+`)
			VALUES (:id, :marketplace_job_id, :tradie_id, :custom_quote, :proposed_timeline, :approach_description,
				:availability_dates, :credits_used, :status, :status_reason, :withdrawal_reason, :application_timestamp, :updated_at)
			ON CONFLICT (marketplace_job_id, tradie_id) DO NOTHING
		`, app)
		if err != nil {
			return fmt.Errorf("failed to insert application: %w", err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrDuplicate
		}

		if app.CreditsUsed > 0 {
			if err := debitCredits(ctx, tx, app.TradieID, app.CreditsUsed, app.ID, now); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE marketplace_jobs SET application_count = application_count + 1, updated_at = $2 WHERE id = $1
		`, app.MarketplaceJobID, now); err != nil {
			return fmt.Errorf("failed to update application count: %w", err)
		}
		return nil
	})
}

// WithdrawApplication withdraws a submitted application still inside its
// window and optionally refunds credits, all in one transaction.
func (s *Store) WithdrawApplication(ctx context.Context, id uuid.UUID, reason string, refund int, now time.Time) (bool, error) {
	withdrawn := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var target struct {
			TradieID         uuid.UUID `db:"tradie_id"`
			MarketplaceJobID uuid.UUID `db:"marketplace_job_id"`
		}
		err := tx.GetContext(ctx, &target, `
			UPDATE job_applications
			SET status = 'withdrawn', withdrawal_reason = $2, updated_at = $3
			WHERE id = $1 AND status = 'submitted' AND application_timestamp > $4
			RETURNING tradie_id, marketplace_job_id
		`, id, reason, now, now.Add(-models.WithdrawalWindow))
		if err != nil {
			if mapError(err) == ErrNotFound {
				return nil
			}
			return fmt.Errorf("failed to withdraw application: %w", err)
		}

		if refund > 0 {
			ref := id
			if _, err := creditTradie(ctx, tx, target.TradieID, refund, models.CreditWithdrawalRefund,
				"application withdrawn", &ref, now); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE marketplace_jobs SET application_count = GREATEST(application_count - 1, 0), updated_at = $2 WHERE id = $1
		`, target.MarketplaceJobID, now); err != nil {
			return fmt.Errorf("failed to update application count: %w", err)
		}
		withdrawn = true
		return nil
	})
	return withdrawn, err
}

func (s *Store) TransitionApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, reason string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE job_applications SET status = $3, status_reason = $4, updated_at = $5
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), reason, now)
	if err != nil {
		return false, fmt.Errorf("failed to update application status: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SelectApplication marks an application selected and the job filled together.
func (s *Store) SelectApplication(ctx context.Context, id, jobID uuid.UUID, reason string, now time.Time) (bool, error) {
	selected := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE job_applications SET status = 'selected', status_reason = $2, updated_at = $3
			WHERE id = $1 AND status = 'under_review'
		`, id, reason, now)
		if err != nil {
			return fmt.Errorf("failed to select application: %w", err)
		}
		n, err := rowsAffected(result)
		if err != nil || n == 0 {
			return err
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE marketplace_jobs SET status = 'filled', updated_at = $2 WHERE id = $1 AND status = 'available'
		`, jobID, now)
		if err != nil {
			return fmt.Errorf("failed to fill marketplace job: %w", err)
		}
		if n, err = rowsAffected(result); err != nil {
			return err
		}
		if n == 0 {
			return ErrJobUnavailable
		}
		selected = true
		return nil
	})
	return selected, err
}
