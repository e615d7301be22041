package handler

import (
	"net/http"
	"strconv"

	"catalog-search/internal/domain/outbox"
	"catalog-search/internal/services"
	"catalog-search/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type IndexHandler struct {
	index    *services.IndexService
	sync     *services.SyncService
	archiver *services.OutboxArchiver
}

func NewIndexHandler(index *services.IndexService, sync *services.SyncService, archiver *services.OutboxArchiver) *IndexHandler {
	return &IndexHandler{index: index, sync: sync, archiver: archiver}
}

func (h *IndexHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.index.Status(c.Request.Context())))
}

func (h *IndexHandler) ReindexAll(c *gin.Context) {
	n, err := h.index.ReindexAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReindexResponse{Indexed: n}))
}

func (h *IndexHandler) ReindexOne(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid product id")
		return
	}
	if err := h.index.ReindexOne(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReindexResponse{Indexed: 1}))
}

func (h *IndexHandler) OutboxSummary(c *gin.Context) {
	summary, err := h.sync.OutboxSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(summary))
}

func (h *IndexHandler) RequeueFailed(c *gin.Context) {
	var req httpdto.LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid limit")
		return
	}
	n, err := h.sync.RequeueFailed(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.RequeueResponse{RequeuedCount: n}))
}

func (h *IndexHandler) EnqueueEvent(c *gin.Context) {
	var req httpdto.EnqueueEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	eventType, err := outbox.ParseEventType(req.EventType)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := h.sync.Enqueue(c.Request.Context(), eventType, req.AggregateID, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.EnqueueEventResponse{OutboxID: id}))
}

func (h *IndexHandler) Archive(c *gin.Context) {
	var req httpdto.ArchiveRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid olderThanDays")
		return
	}
	res, err := h.archiver.Archive(c.Request.Context(), req.OlderThanDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}
