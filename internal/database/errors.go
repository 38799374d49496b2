package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Storage-level failures. Services translate these into typed business errors.
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("duplicate record")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrJobUnavailable      = errors.New("marketplace job unavailable")
)

const uniqueViolation = "23505"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
