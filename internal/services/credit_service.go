package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/models"
)

type CreditService struct {
	store  CreditStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewCreditService(store CreditStore, logger *logrus.Logger) *CreditService {
	return &CreditService{store: store, logger: logger, now: time.Now}
}

func (s *CreditService) Balance(ctx context.Context, tradieID uuid.UUID) (*models.CreditBalance, error) {
	balance, err := s.store.GetCreditBalance(ctx, tradieID)
	if err != nil {
		return nil, apperr.Internal("failed to load credit balance", err)
	}
	return &models.CreditBalance{TradieID: tradieID, Balance: balance}, nil
}

func (s *CreditService) Transactions(ctx context.Context, tradieID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	limit, _ = page(limit, 0)
	txns, err := s.store.ListCreditTransactions(ctx, tradieID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list credit transactions", err)
	}
	return txns, nil
}

// Grant adds credits to a tradie's balance. Only admins may grant.
func (s *CreditService) Grant(ctx context.Context, actor models.Actor, req models.GrantCreditsRequest) (*models.CreditTransaction, error) {
	if !actor.IsAdmin() {
		return nil, apperr.UnauthorizedAccess("only admins can grant credits")
	}
	if req.Amount <= 0 {
		return nil, apperr.ValidationField("amount", "amount must be greater than 0")
	}

	txn, err := s.store.GrantCredits(ctx, req.TradieID, req.Amount, req.Reason, s.now())
	if err != nil {
		return nil, apperr.Internal("failed to grant credits", err)
	}
	s.logger.WithFields(logrus.Fields{
		"tradie_id":  req.TradieID,
		"amount":     req.Amount,
		"granted_by": actor.UserID,
	}).Info("credits granted")
	return txn, nil
}
