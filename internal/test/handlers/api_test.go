package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradiehub-backend/internal/database/memory"
	"tradiehub-backend/internal/handlers"
	"tradiehub-backend/internal/idempotency"
	"tradiehub-backend/internal/logging"
	"tradiehub-backend/internal/middleware"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/notify"
	"tradiehub-backend/internal/payments"
	"tradiehub-backend/internal/pricing"
	"tradiehub-backend/internal/services"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Data    json.RawMessage        `json:"data"`
	Errors  map[string]interface{} `json:"errors"`
}

type apiFixture struct {
	router *gin.Engine
	store  *memory.Store
	jobs   *services.MarketplaceJobService
	tradie models.User
	client models.User
}

// newAPIFixture routes requests the way the server does, with the
// X-Test-User header standing in for a verified token.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()

	f := &apiFixture{
		store:  memory.New(),
		tradie: models.User{ID: uuid.New(), Role: models.RoleTradie, Name: "Sam Sparks", Email: "sam@sparks.test"},
		client: models.User{ID: uuid.New(), Role: models.RoleClient, Name: "Casey Client", Email: "casey@example.test"},
	}
	f.store.PutUser(f.tradie)
	f.store.PutUser(f.client)

	quotes := services.NewQuoteService(services.QuoteServiceDeps{
		Quotes:     f.store,
		Payments:   f.store,
		Directory:  f.store,
		Calculator: pricing.NewCalculator(0.10),
		Gateway:    payments.NewStripeGatewayWithBackend("sk_test_unused", "http://127.0.0.1:1"),
		Sender:     notify.NewDispatcher(nil, nil, nil, logger),
		Locker:     idempotency.NewMemoryLocker(),
		Logger:     logger,
	}, services.QuoteServiceConfig{BaseURL: "https://app.tradiehub.test"})
	f.jobs = services.NewMarketplaceJobService(f.store, logger)
	applications := services.NewApplicationService(f.store, services.DefaultCreditCosts, true, logger)

	quotesHandler := handlers.NewQuotesHandler(quotes, logger)
	pricingHandler := handlers.NewPricingHandler(quotes, nil, logger)
	applicationsHandler := handlers.NewApplicationsHandler(applications, logger)

	users := map[string]models.User{f.tradie.ID.String(): f.tradie, f.client.ID.String(): f.client}
	fakeAuth := func(c *gin.Context) {
		if user, ok := users[c.GetHeader("X-Test-User")]; ok {
			c.Set(middleware.ActorKey, models.Actor{UserID: user.ID, Role: user.Role, EmailVerified: true})
		}
		c.Next()
	}

	f.router = gin.New()
	api := f.router.Group("/api/v1", fakeAuth)
	tradie := middleware.RequireRole(models.RoleTradie)
	api.POST("/quotes/calculate", pricingHandler.Calculate)
	api.POST("/quotes", tradie, quotesHandler.CreateQuote)
	api.GET("/quotes/:id", quotesHandler.GetQuote)
	api.PATCH("/quotes/:id/status", tradie, quotesHandler.UpdateQuoteStatus)
	api.DELETE("/quotes/:id", tradie, quotesHandler.DeleteQuote)
	api.POST("/marketplace/applications", tradie, applicationsHandler.CreateApplication)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, as *models.User, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("X-Test-User", as.ID.String())
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func quoteBody(clientID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"client_id": clientID,
		"title":     "Kitchen lighting",
		"items": []map[string]interface{}{
			{"item_type": "labor", "description": "Install downlights", "quantity": 2, "unit_price": 50},
		},
		"gst_enabled": true,
		"valid_until": time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
	}
}

func TestCalculate(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, "POST", "/api/v1/quotes/calculate", &f.tradie, map[string]interface{}{
		"items": []map[string]interface{}{
			{"item_type": "labor", "description": "Install", "quantity": 2, "unit_price": 50},
			{"item_type": "material", "description": "Cable", "quantity": "1.5", "unit_price": "10.01"},
		},
		"gst_enabled": true,
	})

	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	var calc models.QuoteCalculation
	require.NoError(t, json.Unmarshal(env.Data, &calc))
	assert.Equal(t, "115.02", calc.Subtotal.StringFixed(2))
	assert.Equal(t, "11.50", calc.GSTAmount.StringFixed(2))
	assert.Equal(t, "126.52", calc.TotalAmount.StringFixed(2))
}

func TestValidationErrorsNameTheField(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, "POST", "/api/v1/quotes/calculate", &f.tradie, map[string]interface{}{
		"items": []map[string]interface{}{
			{"item_type": "labor", "description": "Install", "quantity": 1, "unit_price": 50},
			{"item_type": "travel", "description": "Drive", "quantity": 1, "unit_price": 20},
		},
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
	assert.Contains(t, env.Errors, "items[1].item_type")
}

func TestMalformedJSON(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, "POST", "/api/v1/quotes/calculate", &f.tradie, `{"items": [`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestQuoteEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, "POST", "/api/v1/quotes", &f.tradie, quoteBody(f.client.ID))
	require.Equal(t, http.StatusCreated, code, env.Message)
	var quote models.Quote
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.True(t, strings.HasPrefix(quote.QuoteNumber, "QT-"))
	assert.Equal(t, models.QuoteStatusDraft, quote.Status)
	assert.True(t, quote.TotalAmount.Equal(decimal.NewFromInt(110)))

	path := "/api/v1/quotes/" + quote.ID.String()

	t.Run("requires authentication", func(t *testing.T) {
		code, env := f.do(t, "GET", path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "AUTHENTICATION_REQUIRED", env.Code)
	})

	t.Run("client cannot create quotes", func(t *testing.T) {
		code, _ := f.do(t, "POST", "/api/v1/quotes", &f.client, quoteBody(f.client.ID))
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("bad id", func(t *testing.T) {
		code, env := f.do(t, "GET", "/api/v1/quotes/not-a-uuid", &f.tradie, nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, env.Errors, "id")
	})

	t.Run("owner reads it", func(t *testing.T) {
		code, env := f.do(t, "GET", path, &f.tradie, nil)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
	})

	t.Run("tradie cannot accept on the client's behalf", func(t *testing.T) {
		code, env := f.do(t, "PATCH", path+"/status", &f.tradie, map[string]string{"status": "accepted"})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "INVALID_STATE_TRANSITION", env.Code)
		assert.Equal(t, "draft", env.Errors["current_status"])
	})

	t.Run("draft can be deleted once", func(t *testing.T) {
		code, _ := f.do(t, "DELETE", path, &f.tradie, nil)
		assert.Equal(t, http.StatusOK, code)

		code, env := f.do(t, "GET", path, &f.tradie, nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "NOT_FOUND", env.Code)
	})
}

func TestCreateApplication_InsufficientCredits(t *testing.T) {
	f := newAPIFixture(t)
	job, err := f.jobs.CreateJob(context.Background(), f.client.ID, models.CreateMarketplaceJobRequest{
		Title:           "Deck repair",
		Description:     "Replace rotten boards on the back deck.",
		JobType:         "carpentry",
		UrgencyLevel:    models.UrgencyHigh,
		EstimatedBudget: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	_, err = f.store.GrantCredits(context.Background(), f.tradie.ID, 3, "starter pack", time.Now())
	require.NoError(t, err)

	code, env := f.do(t, "POST", "/api/v1/marketplace/applications", &f.tradie, map[string]interface{}{
		"marketplace_job_id":   job.ID,
		"custom_quote":         1350,
		"proposed_timeline":    "Two days next week",
		"approach_description": "Lift the damaged boards and replace them with treated pine.",
		"availability_dates":   []string{"2030-01-15"},
	})

	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "INSUFFICIENT_CREDITS", env.Code)
	assert.Equal(t, float64(5), env.Errors["required_credits"])
	assert.Equal(t, float64(3), env.Errors["current_balance"])
}
