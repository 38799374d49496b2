package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"tradiehub-backend/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *apperr.Error
		status int
	}{
		{apperr.ValidationField("amount", "must be positive"), http.StatusBadRequest},
		{apperr.AuthenticationRequired("missing token"), http.StatusUnauthorized},
		{apperr.UnauthorizedAccess("not yours"), http.StatusForbidden},
		{apperr.NotFound("quote"), http.StatusNotFound},
		{apperr.InvalidStateTransition("quote", "accepted", "draft"), http.StatusConflict},
		{apperr.InsufficientCredits(3, 1), http.StatusPaymentRequired},
		{apperr.PaymentFailed("card_declined", nil), http.StatusPaymentRequired},
		{apperr.RateLimitExceeded(10, "second"), http.StatusTooManyRequests},
		{apperr.Timeout("payment", nil), http.StatusGatewayTimeout},
		{apperr.Internal("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}

func TestIs_MatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("accepting quote: %w", apperr.QuoteExpired("QT-20250101-ABC123"))

	assert.True(t, errors.Is(err, apperr.ErrQuoteExpired))
	assert.False(t, errors.Is(err, apperr.ErrInvalidStateTransition))
}

func TestFrom_WrapsUnknownErrorsAsInternal(t *testing.T) {
	cause := errors.New("connection refused")

	appErr := apperr.From(cause)

	assert.Equal(t, apperr.KindInternal, appErr.Kind)
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, apperr.From(nil))
}

func TestInsufficientCredits_Details(t *testing.T) {
	err := apperr.InsufficientCredits(3, 1)

	assert.Equal(t, 3, err.Details["required_credits"])
	assert.Equal(t, 1, err.Details["current_balance"])
}

func TestInvalidStateTransition_Details(t *testing.T) {
	err := apperr.InvalidStateTransition("quote", "accepted", "draft")

	assert.Equal(t, apperr.KindInvalidStateTransition, apperr.KindOf(err))
	assert.Equal(t, "accepted", err.Details["current_status"])
}
