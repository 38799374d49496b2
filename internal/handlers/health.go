package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"tradiehub-backend/internal/models"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler godoc
// @Summary     Health check
// @Description Returns the health status of the API and its database
// @Tags        health
// @Accept      json
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Failure     503 {object} models.HealthResponse
// @Router      /health [get]
func HealthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := models.HealthResponse{Status: "ok"}
		if db == nil {
			c.JSON(http.StatusOK, response)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			response.Status = "degraded"
			response.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "ok"
		c.JSON(http.StatusOK, response)
	}
}
