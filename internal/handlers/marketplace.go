package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/services"
)

type MarketplaceHandler struct {
	jobs   *services.MarketplaceJobService
	logger *logrus.Logger
}

func NewMarketplaceHandler(jobs *services.MarketplaceJobService, logger *logrus.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{jobs: jobs, logger: logger}
}

// CreateJob godoc
// @Summary     Post a marketplace job
// @Tags        marketplace
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.CreateMarketplaceJobRequest true "Job"
// @Success     201 {object} models.APIResponse{data=models.MarketplaceJob}
// @Router      /api/v1/marketplace/jobs [post]
func (h *MarketplaceHandler) CreateJob(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	var req models.CreateMarketplaceJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "marketplace job created", job)
}

// ListJobs godoc
// @Summary     List open marketplace jobs
// @Tags        marketplace
// @Produce     json
// @Security    BearerAuth
// @Param       job_type query string false "Filter by job type"
// @Param       limit    query int    false "Page size"
// @Param       offset   query int    false "Offset"
// @Success     200 {object} models.APIResponse{data=[]models.MarketplaceJob}
// @Router      /api/v1/marketplace/jobs [get]
func (h *MarketplaceHandler) ListJobs(c *gin.Context) {
	filter := models.MarketplaceJobFilter{
		JobType: c.Query("job_type"),
		Limit:   intQuery(c, "limit", 0),
		Offset:  intQuery(c, "offset", 0),
	}

	jobs, err := h.jobs.ListAvailable(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "marketplace jobs retrieved", jobs)
}

// GetJob godoc
// @Summary     Get a marketplace job
// @Tags        marketplace
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Job ID"
// @Success     200 {object} models.APIResponse{data=models.MarketplaceJob}
// @Failure     404 {object} models.APIResponse
// @Router      /api/v1/marketplace/jobs/{id} [get]
func (h *MarketplaceHandler) GetJob(c *gin.Context) {
	jobID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "marketplace job retrieved", job)
}

// UpdateJob godoc
// @Summary     Update a marketplace job
// @Tags        marketplace
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                             true "Job ID"
// @Param       request body models.UpdateMarketplaceJobRequest true "Changes"
// @Success     200 {object} models.APIResponse{data=models.MarketplaceJob}
// @Router      /api/v1/marketplace/jobs/{id} [put]
func (h *MarketplaceHandler) UpdateJob(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}
	var req models.UpdateMarketplaceJobRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	job, err := h.jobs.UpdateJob(c.Request.Context(), jobID, actor.UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "marketplace job updated", job)
}

// DeleteJob godoc
// @Summary     Delete a marketplace job without applications
// @Tags        marketplace
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Job ID"
// @Success     200 {object} models.APIResponse
// @Failure     409 {object} models.APIResponse
// @Router      /api/v1/marketplace/jobs/{id} [delete]
func (h *MarketplaceHandler) DeleteJob(c *gin.Context) {
	actor, ok := currentActor(c, h.logger)
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, h.logger, "id")
	if !ok {
		return
	}

	if err := h.jobs.DeleteJob(c.Request.Context(), jobID, actor.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "marketplace job deleted", nil)
}
