package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/services"
)

type CreditsHandler struct {
	credits *services.CreditService
	logger  *logrus.Logger
}

func NewCreditsHandler(credits *services.CreditService, logger *logrus.Logger) *CreditsHandler {
	return &CreditsHandler{credits: credits, logger: logger}
}

// GetBalance godoc
// @Summary     Credit balance
// @Tags        credits
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} models.APIResponse{data=models.CreditBalance}
// @Router      /api/v1/credits/balance [get]
func (h *CreditsHandler) GetBalance(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}

	balance, err := h.credits.Balance(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "credit balance retrieved", balance)
}

// ListTransactions godoc
// @Summary     Credit history
// @Tags        credits
// @Produce     json
// @Security    BearerAuth
// @Param       limit query int false "Number of entries"
// @Success     200 {object} models.APIResponse{data=[]models.CreditTransaction}
// @Router      /api/v1/credits/transactions [get]
func (h *CreditsHandler) ListTransactions(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}

	txns, err := h.credits.Transactions(c.Request.Context(), actor.UserID, intQuery(c, "limit", 0))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "credit transactions retrieved", txns)
}

// GrantCredits godoc
// @Summary     Grant credits to a tradie
// @Tags        credits
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.GrantCreditsRequest true "Grant"
// @Success     201 {object} models.APIResponse{data=models.CreditTransaction}
// @Failure     403 {object} models.APIResponse
// @Router      /api/v1/credits/grants [post]
func (h *CreditsHandler) GrantCredits(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.GrantCreditsRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	txn, err := h.credits.Grant(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "credits granted", txn)
}
