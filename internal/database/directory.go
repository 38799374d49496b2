package database

import (
	"context"

	"github.com/google/uuid"
	"tradiehub-backend/internal/models"
)

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.GetContext(ctx, &user, `SELECT id, role, name, email, phone FROM users WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := s.db.GetContext(ctx, &job, `SELECT id, client_id, tradie_id, title, status FROM jobs WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &job, nil
}
