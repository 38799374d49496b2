package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"tradiehub-backend/internal/models"
)

// Client facing payment routes address the quote by its number, which sits
// in the ":id" segment shared with the tradie routes.

// AcceptWithPayment godoc
// @Summary     Accept a quote and pay for it
// @Description Charges the quote total and accepts the quote in one step. request_id makes retries safe.
// @Tags        payments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                          true "Quote number"
// @Param       request body models.AcceptWithPaymentRequest true "Payment"
// @Success     200 {object} models.APIResponse{data=models.AcceptWithPaymentResult}
// @Failure     402 {object} models.APIResponse
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/quotes/{id}/accept-with-payment [post]
func (h *QuotesHandler) AcceptWithPayment(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.AcceptWithPaymentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.quotes.AcceptQuoteWithPayment(c.Request.Context(), c.Param("id"), actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote accepted and paid", result)
}

// CreatePaymentIntent godoc
// @Summary     Create a payment intent for a quote
// @Tags        payments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                      true "Quote number"
// @Param       request body models.PaymentIntentRequest true "Request"
// @Success     200 {object} models.APIResponse{data=models.PaymentIntentResult}
// @Router      /api/v1/quotes/{id}/payment-intent [post]
func (h *QuotesHandler) CreatePaymentIntent(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.PaymentIntentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	intent, err := h.quotes.CreatePaymentIntent(c.Request.Context(), c.Param("id"), actor.UserID, req.RequestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "payment intent created", intent)
}

// GenerateInvoice godoc
// @Summary     Generate the invoice for an accepted quote
// @Description Returns the existing invoice when one was already issued.
// @Tags        payments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                        true "Quote ID"
// @Param       request body models.GenerateInvoiceRequest true "Request"
// @Success     200 {object} models.APIResponse{data=models.Invoice}
// @Router      /api/v1/quotes/{id}/invoice [post]
func (h *QuotesHandler) GenerateInvoice(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.GenerateInvoiceRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	invoice, err := h.quotes.GenerateQuoteInvoice(c.Request.Context(), quoteID, actor.UserID, req.RequestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "invoice generated", invoice)
}

// RefundPayment godoc
// @Summary     Refund part or all of a quote payment
// @Tags        payments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                    true "Quote ID"
// @Param       request body models.RefundQuoteRequest true "Refund"
// @Success     200 {object} models.APIResponse{data=models.RefundResult}
// @Failure     400 {object} models.APIResponse
// @Router      /api/v1/quotes/{id}/refund [post]
func (h *QuotesHandler) RefundPayment(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.RefundQuoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.quotes.RefundQuotePayment(c.Request.Context(), quoteID, actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "refund processed", result)
}
