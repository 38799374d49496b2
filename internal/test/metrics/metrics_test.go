package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"tradiehub-backend/internal/metrics"
)

func TestMiddlewareRecordsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(metrics.Middleware())
	router.GET("/api/v1/quotes/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	req, _ := http.NewRequest("GET", "/api/v1/quotes/123", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	metrics.RecordQuoteTransition("sent", "accepted")
	metrics.RecordSweep("quote", 0)

	req, _ = http.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `tradiehub_http_requests_total{method="GET",path="/api/v1/quotes/:id",status="204"}`)
	assert.Contains(t, body, `tradiehub_quotes_transitions_total{from="sent",to="accepted"}`)
	assert.NotContains(t, body, `tradiehub_sweeper_expired_total{entity="quote"}`)
}
