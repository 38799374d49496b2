package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"tradiehub-backend/internal/models"
)

func (s *Store) applyCreditLocked(tradieID uuid.UUID, amount int, kind models.CreditTransactionKind, reason string, ref *uuid.UUID, now time.Time) *models.CreditTransaction {
	s.balances[tradieID] += amount
	txn := models.CreditTransaction{
		ID:           uuid.New(),
		TradieID:     tradieID,
		Amount:       amount,
		Kind:         kind,
		Reason:       reason,
		ReferenceID:  ref,
		BalanceAfter: s.balances[tradieID],
		CreatedAt:    now,
	}
	s.ledger = append(s.ledger, txn)
	return &txn
}

func (s *Store) GetCreditBalance(ctx context.Context, tradieID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[tradieID], nil
}

func (s *Store) GrantCredits(ctx context.Context, tradieID uuid.UUID, amount int, reason string, now time.Time) (*models.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyCreditLocked(tradieID, amount, models.CreditGrant, reason, nil, now), nil
}

func (s *Store) ListCreditTransactions(ctx context.Context, tradieID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txns := []models.CreditTransaction{}
	for _, txn := range s.ledger {
		if txn.TradieID == tradieID {
			txns = append(txns, txn)
		}
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return paginate(txns, limit, 0), nil
}
