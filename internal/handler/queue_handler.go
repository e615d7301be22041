package handler

import (
	"net/http"

	"catalog-search/internal/services"
	"catalog-search/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	service *services.QueueAdminService
}

func NewQueueHandler(service *services.QueueAdminService) *QueueHandler {
	return &QueueHandler{service: service}
}

func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.service.QueueStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(stats))
}

func (h *QueueHandler) QueueStats(c *gin.Context) {
	stats, err := h.service.QueueStatsFor(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(stats))
}

func (h *QueueHandler) FailedJobs(c *gin.Context) {
	var req httpdto.FailedJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if req.Order != "" && req.Order != "newest" && req.Order != "oldest" {
		badRequest(c, "order must be newest or oldest")
		return
	}
	page, err := h.service.FailedJobs(c.Request.Context(), c.Param("name"), req.Page, req.Limit, req.NewestFirst())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(page))
}

func (h *QueueHandler) RetryJob(c *gin.Context) {
	if err := h.service.RetryJob(c.Request.Context(), c.Param("name"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *QueueHandler) RemoveJob(c *gin.Context) {
	if err := h.service.RemoveJob(c.Request.Context(), c.Param("name"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *QueueHandler) Pause(c *gin.Context) {
	h.setPaused(c, true)
}

func (h *QueueHandler) Resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *QueueHandler) setPaused(c *gin.Context, paused bool) {
	stats, err := h.service.SetPaused(c.Request.Context(), c.Param("name"), paused)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(stats))
}

func (h *QueueHandler) RetryFailed(c *gin.Context) {
	var req httpdto.LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid limit")
		return
	}
	outcome, err := h.service.RetryFailedJobs(c.Request.Context(), c.Param("name"), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(outcome))
}

func (h *QueueHandler) AutoRetry(c *gin.Context) {
	var req httpdto.AutoRetryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	report, err := h.service.AutoRetryFailed(c.Request.Context(), req.PerQueueLimit, req.MaxTotal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(report))
}
