package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/models"
)

// PricingAdvisor suggests a price range for a described job.
type PricingAdvisor interface {
	Suggest(ctx context.Context, req models.AIPricingRequest) (*models.PricingSuggestion, error)
}

type Calculator interface {
	Calculate(req models.CalculateQuoteRequest) (*models.QuoteCalculation, error)
}

type PricingHandler struct {
	calculator Calculator
	advisor    PricingAdvisor
	logger     *logrus.Logger
}

func NewPricingHandler(calculator Calculator, advisor PricingAdvisor, logger *logrus.Logger) *PricingHandler {
	return &PricingHandler{calculator: calculator, advisor: advisor, logger: logger}
}

// Calculate godoc
// @Summary     Calculate quote totals
// @Description Computes line totals, subtotal, GST and total without saving anything.
// @Tags        pricing
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.CalculateQuoteRequest true "Items"
// @Success     200 {object} models.APIResponse{data=models.QuoteCalculation}
// @Failure     400 {object} models.APIResponse
// @Router      /api/v1/quotes/calculate [post]
func (h *PricingHandler) Calculate(c *gin.Context) {
	var req models.CalculateQuoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	calc, err := h.calculator.Calculate(req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote calculated", calc)
}

// SuggestPrice godoc
// @Summary     AI pricing suggestion
// @Description Suggests a price range for a job. Falls back to a local estimate with lower confidence when the pricing model is unavailable.
// @Tags        pricing
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.AIPricingRequest true "Job details"
// @Success     200 {object} models.APIResponse{data=models.PricingSuggestion}
// @Failure     400 {object} models.APIResponse
// @Router      /api/v1/quotes/ai-pricing [post]
func (h *PricingHandler) SuggestPrice(c *gin.Context) {
	var req models.AIPricingRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	suggestion, err := h.advisor.Suggest(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "pricing suggestion generated", suggestion)
}
