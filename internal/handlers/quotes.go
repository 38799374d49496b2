package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/services"
)

const analyticsWindow = 30 * 24 * time.Hour

type QuotesHandler struct {
	quotes *services.QuoteService
	logger *logrus.Logger
}

func NewQuotesHandler(quotes *services.QuoteService, logger *logrus.Logger) *QuotesHandler {
	return &QuotesHandler{quotes: quotes, logger: logger}
}

// CreateQuote godoc
// @Summary     Create a quote
// @Description Creates a draft quote for one of the tradie's clients. Totals are computed server side.
// @Tags        quotes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.CreateQuoteRequest true "Quote"
// @Success     201 {object} models.APIResponse{data=models.Quote}
// @Failure     400 {object} models.APIResponse
// @Failure     403 {object} models.APIResponse
// @Router      /api/v1/quotes [post]
func (h *QuotesHandler) CreateQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.CreateQuoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	quote, err := h.quotes.CreateQuote(c.Request.Context(), actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "quote created", quote)
}

// GetQuote godoc
// @Summary     Get a quote
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Quote ID"
// @Success     200 {object} models.APIResponse{data=models.Quote}
// @Failure     404 {object} models.APIResponse
// @Router      /api/v1/quotes/{id} [get]
func (h *QuotesHandler) GetQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	quote, err := h.quotes.GetQuote(c.Request.Context(), quoteID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote retrieved", quote)
}

// ListQuotes godoc
// @Summary     List the tradie's quotes
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       status query string false "Filter by status"
// @Param       limit  query int    false "Page size (default 20, max 100)"
// @Param       offset query int    false "Offset"
// @Success     200 {object} models.APIResponse{data=[]models.Quote}
// @Router      /api/v1/quotes [get]
func (h *QuotesHandler) ListQuotes(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}

	filter := models.QuoteFilter{
		Limit:  intQuery(c, "limit", 0),
		Offset: intQuery(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status, valid := models.ParseQuoteStatus(raw)
		if !valid {
			respondError(c, h.logger, apperr.ValidationField("status", "unknown quote status"))
			return
		}
		filter.Status = status
	}

	quotes, err := h.quotes.ListQuotes(c.Request.Context(), actor.UserID, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quotes retrieved", quotes)
}

// UpdateQuote godoc
// @Summary     Update a quote
// @Description Edits an unaccepted quote. Items replace the existing list and totals are recomputed.
// @Tags        quotes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                    true "Quote ID"
// @Param       request body models.UpdateQuoteRequest true "Changes"
// @Success     200 {object} models.APIResponse{data=models.Quote}
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/quotes/{id} [put]
func (h *QuotesHandler) UpdateQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.UpdateQuoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	quote, err := h.quotes.UpdateQuote(c.Request.Context(), quoteID, actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote updated", quote)
}

// UpdateQuoteStatus godoc
// @Summary     Change a quote's status
// @Tags        quotes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                          true "Quote ID"
// @Param       request body models.UpdateQuoteStatusRequest true "Target status"
// @Success     200 {object} models.APIResponse{data=models.Quote}
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/quotes/{id}/status [patch]
func (h *QuotesHandler) UpdateQuoteStatus(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.UpdateQuoteStatusRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	quote, err := h.quotes.UpdateQuoteStatus(c.Request.Context(), quoteID, actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote status updated", quote)
}

// DeleteQuote godoc
// @Summary     Delete a draft quote
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Quote ID"
// @Success     200 {object} models.APIResponse
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/quotes/{id} [delete]
func (h *QuotesHandler) DeleteQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	if err := h.quotes.DeleteQuote(c.Request.Context(), quoteID, actor.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote deleted", nil)
}

// SendQuote godoc
// @Summary     Send a quote to the client
// @Description Marks a draft quote as sent and delivers it over each requested channel.
// @Tags        quotes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true "Quote ID"
// @Param       request body models.SendQuoteRequest true "Delivery"
// @Success     200 {object} models.APIResponse{data=models.SendQuoteResult}
// @Router      /api/v1/quotes/{id}/send [post]
func (h *QuotesHandler) SendQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	quoteID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.SendQuoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.quotes.SendQuote(c.Request.Context(), quoteID, actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote sent", result)
}

// ViewQuote godoc
// @Summary     View a quote by number
// @Description Public view used by the client link. The first view of a sent quote marks it viewed.
// @Tags        quotes
// @Produce     json
// @Param       quoteNumber path string true "Quote number"
// @Success     200 {object} models.APIResponse{data=models.Quote}
// @Failure     404 {object} models.APIResponse
// @Router      /api/v1/quotes/view/{quoteNumber} [get]
func (h *QuotesHandler) ViewQuote(c *gin.Context) {
	quote, err := h.quotes.ViewQuote(c.Request.Context(), c.Param("quoteNumber"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote retrieved", quote)
}

// AcceptQuote godoc
// @Summary     Accept a quote
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       quoteNumber path string true "Quote number"
// @Success     200 {object} models.APIResponse{data=models.Quote}
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/quotes/accept/{quoteNumber} [post]
func (h *QuotesHandler) AcceptQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}

	quote, err := h.quotes.AcceptQuote(c.Request.Context(), c.Param("quoteNumber"), actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote accepted", quote)
}

// RejectQuote godoc
// @Summary     Reject a quote
// @Tags        quotes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       quoteNumber path string                    true  "Quote number"
// @Param       request     body models.RejectQuoteRequest false "Reason"
// @Success     200 {object} models.APIResponse{data=models.Quote}
// @Router      /api/v1/quotes/reject/{quoteNumber} [post]
func (h *QuotesHandler) RejectQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.RejectQuoteRequest
	// The body is optional.
	if c.Request.ContentLength != 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	quote, err := h.quotes.RejectQuote(c.Request.Context(), c.Param("quoteNumber"), actor.UserID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "quote rejected", quote)
}

// GetAnalytics godoc
// @Summary     Quote analytics
// @Description Counts and values per status over a date range. Defaults to the last 30 days.
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       start_date query string false "YYYY-MM-DD or RFC 3339"
// @Param       end_date   query string false "YYYY-MM-DD or RFC 3339"
// @Success     200 {object} models.APIResponse{data=models.QuoteAnalytics}
// @Router      /api/v1/quotes/analytics [get]
func (h *QuotesHandler) GetAnalytics(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}

	end := time.Now().UTC()
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := parseDate(raw, true)
		if err != nil {
			respondError(c, h.logger, apperr.ValidationField("end_date", "must be YYYY-MM-DD or an RFC 3339 timestamp"))
			return
		}
		end = parsed
	}
	start := end.Add(-analyticsWindow)
	if raw := c.Query("start_date"); raw != "" {
		parsed, err := parseDate(raw, false)
		if err != nil {
			respondError(c, h.logger, apperr.ValidationField("start_date", "must be YYYY-MM-DD or an RFC 3339 timestamp"))
			return
		}
		start = parsed
	}

	analytics, err := h.quotes.GetAnalytics(c.Request.Context(), actor.UserID, start, end)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "analytics retrieved", analytics)
}

// parseDate accepts a plain date or a timestamp. A plain end date covers
// the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
