package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradiehub-backend/internal/logging"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/services"
)

type countingExpirer struct {
	calls int
	err   error
}

func (e *countingExpirer) ExpireOverdue(ctx context.Context) (int64, error) {
	e.calls++
	return 1, e.err
}

func TestExpirySweeper_RunOnce(t *testing.T) {
	quotes := &countingExpirer{err: errors.New("database is down")}
	jobs := &countingExpirer{}
	sweeper := services.NewExpirySweeper(quotes, jobs, logging.Discard())

	sweeper.RunOnce(context.Background())

	// A failing sweep does not stop the next one.
	assert.Equal(t, 1, quotes.calls)
	assert.Equal(t, 1, jobs.calls)
}

func TestExpirySweeper_ExpiresQuotes(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)
	f.clock.Advance(8 * 24 * time.Hour)

	services.NewExpirySweeper(f.quotes, nil, logging.Discard()).RunOnce(context.Background())

	stored, err := f.store.GetQuote(context.Background(), quote.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusExpired, stored.Status)
}

func TestExpirySweeper_InvalidSchedule(t *testing.T) {
	sweeper := services.NewExpirySweeper(&countingExpirer{}, nil, logging.Discard())

	assert.Error(t, sweeper.Start("every now and then"))
}

func TestExpirySweeper_StartStop(t *testing.T) {
	sweeper := services.NewExpirySweeper(&countingExpirer{}, &countingExpirer{}, logging.Discard())
	require.NoError(t, sweeper.Start("@every 1h"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sweeper.Stop(ctx)
}
