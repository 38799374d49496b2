package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"tradiehub-backend/internal/models"
)

func (s *Store) GetCreditBalance(ctx context.Context, tradieID uuid.UUID) (int, error) {
	var balance int
	err := s.db.GetContext(ctx, &balance, `SELECT balance FROM credit_balances WHERE tradie_id = $1`, tradieID)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}

func (s *Store) GrantCredits(ctx context.Context, tradieID uuid.UUID, amount int, reason string, now time.Time) (*models.CreditTransaction, error) {
	var txn *models.CreditTransaction
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = creditTradie(ctx, tx, tradieID, amount, models.CreditGrant, reason, nil, now)
		return err
	})
	return txn, err
}

func (s *Store) ListCreditTransactions(ctx context.Context, tradieID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	txns := []models.CreditTransaction{}
	err := s.db.SelectContext(ctx, &txns, `
		SELECT id, tradie_id, amount, kind, reason, reference_id, balance_after, created_at
		FROM credit_transactions WHERE tradie_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, tradieID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	return txns, nil
}

// debitCredits only succeeds when the balance covers the amount.
func debitCredits(ctx context.Context, tx *sqlx.Tx, tradieID uuid.UUID, amount int, applicationID uuid.UUID, now time.Time) error {
	var balance int
	err := tx.GetContext(ctx, &balance, `
		UPDATE credit_balances SET balance = balance - $2, updated_at = $3
		WHERE tradie_id = $1 AND balance >= $2
		RETURNING balance
	`, tradieID, amount, now)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return ErrInsufficientCredits
		}
		return fmt.Errorf("failed to debit credits: %w", err)
	}

	ref := applicationID
	return insertCreditTransaction(ctx, tx, &models.CreditTransaction{
		ID:           uuid.New(),
		TradieID:     tradieID,
		Amount:       -amount,
		Kind:         models.CreditApplicationDebit,
		Reason:       "job application",
		ReferenceID:  &ref,
		BalanceAfter: balance,
		CreatedAt:    now,
	})
}

func creditTradie(ctx context.Context, tx *sqlx.Tx, tradieID uuid.UUID, amount int, kind models.CreditTransactionKind, reason string, ref *uuid.UUID, now time.Time) (*models.CreditTransaction, error) {
	var balance int
	err := tx.GetContext(ctx, &balance, `
		INSERT INTO credit_balances (tradie_id, balance, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (tradie_id) DO UPDATE
		SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance
	`, tradieID, amount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to credit tradie: %w", err)
	}

	txn := &models.CreditTransaction{
		ID:           uuid.New(),
		TradieID:     tradieID,
		Amount:       amount,
		Kind:         kind,
		Reason:       reason,
		ReferenceID:  ref,
		BalanceAfter: balance,
		CreatedAt:    now,
	}
	if err := insertCreditTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func insertCreditTransaction(ctx context.Context, tx *sqlx.Tx, txn *models.CreditTransaction) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO credit_transactions (id, tradie_id, amount, kind, reason, reference_id, balance_after, created_at)
		VALUES (:id, :tradie_id, :amount, :kind, :reason, :reference_id, :balance_after, :created_at)
	`, txn)
	if err != nil {
		return fmt.Errorf("failed to record credit transaction: %w", err)
	}
	return nil
}
