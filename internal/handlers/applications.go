package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/services"
)

type ApplicationsHandler struct {
	applications *services.ApplicationService
	logger       *logrus.Logger
}

func NewApplicationsHandler(applications *services.ApplicationService, logger *logrus.Logger) *ApplicationsHandler {
	return &ApplicationsHandler{applications: applications, logger: logger}
}

// CreateApplication godoc
// @Summary     Apply to a marketplace job
// @Description Submits an application and debits its credit cost in the same transaction.
// @Tags        applications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.CreateApplicationRequest true "Application"
// @Success     201 {object} models.APIResponse{data=models.JobApplication}
// @Failure     402 {object} models.APIResponse
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/marketplace/applications [post]
func (h *ApplicationsHandler) CreateApplication(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.CreateApplicationRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	app, err := h.applications.CreateApplication(c.Request.Context(), actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "application submitted", app)
}

// CheckEligibility godoc
// @Summary     Check whether the tradie can apply to a job
// @Tags        applications
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Job ID"
// @Success     200 {object} models.APIResponse{data=models.EligibilityResult}
// @Router      /api/v1/marketplace/jobs/{id}/eligibility [get]
func (h *ApplicationsHandler) CheckEligibility(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	result, err := h.applications.ValidateApplicationEligibility(c.Request.Context(), actor.UserID, jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "eligibility checked", result)
}

// GetApplication godoc
// @Summary     Get an application
// @Tags        applications
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Application ID"
// @Success     200 {object} models.APIResponse{data=models.JobApplication}
// @Router      /api/v1/marketplace/applications/{id} [get]
func (h *ApplicationsHandler) GetApplication(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	appID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	app, err := h.applications.GetApplication(c.Request.Context(), appID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "application retrieved", app)
}

// ListMyApplications godoc
// @Summary     List the tradie's applications
// @Tags        applications
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} models.APIResponse{data=[]models.JobApplication}
// @Router      /api/v1/marketplace/applications/mine [get]
func (h *ApplicationsHandler) ListMyApplications(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}

	apps, err := h.applications.ListTradieApplications(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "applications retrieved", apps)
}

// ListJobApplications godoc
// @Summary     List applications for a job
// @Tags        applications
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Job ID"
// @Success     200 {object} models.APIResponse{data=[]models.JobApplication}
// @Router      /api/v1/marketplace/jobs/{id}/applications [get]
func (h *ApplicationsHandler) ListJobApplications(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	apps, err := h.applications.ListJobApplications(c.Request.Context(), jobID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "applications retrieved", apps)
}

// UpdateStatus godoc
// @Summary     Change an application's status
// @Tags        applications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                                true "Application ID"
// @Param       request body models.UpdateApplicationStatusRequest true "Target status"
// @Success     200 {object} models.APIResponse{data=models.JobApplication}
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/marketplace/applications/{id}/status [patch]
func (h *ApplicationsHandler) UpdateStatus(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	appID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.UpdateApplicationStatusRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	app, err := h.applications.UpdateApplicationStatus(c.Request.Context(), appID, req.Status, actor, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "application status updated", app)
}

// Withdraw godoc
// @Summary     Withdraw an application
// @Description Allowed within 24 hours of submission while the application is still submitted.
// @Tags        applications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                            true "Application ID"
// @Param       request body models.WithdrawApplicationRequest true "Withdrawal"
// @Success     200 {object} models.APIResponse{data=models.JobApplication}
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/marketplace/applications/{id}/withdraw [post]
func (h *ApplicationsHandler) Withdraw(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	appID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.WithdrawApplicationRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	app, err := h.applications.WithdrawApplication(c.Request.Context(), appID, actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "application withdrawn", app)
}

// BulkUpdateStatus godoc
// @Summary     Change the status of several applications
// @Description Each application is updated independently and reported in the results.
// @Tags        applications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.BulkApplicationStatusRequest true "Applications"
// @Success     200 {object} models.APIResponse{data=models.BulkStatusResult}
// @Router      /api/v1/marketplace/applications/bulk-status [post]
func (h *ApplicationsHandler) BulkUpdateStatus(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.BulkApplicationStatusRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.applications.BulkUpdateStatus(c.Request.Context(), req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "bulk status update processed", result)
}
