package handler

import (
	"errors"
	"net/http"
	"strings"

	"catalog-search/internal/domain/search"
	"catalog-search/internal/middleware"
	"catalog-search/internal/services"
	"catalog-search/internal/transport/httpdto"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"

	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	search   *services.SearchService
	keywords *services.KeywordService
	weights  *services.WeightService
	logger   *logger.Logger
}

func NewSearchHandler(search *services.SearchService, keywords *services.KeywordService, weights *services.WeightService, l *logger.Logger) *SearchHandler {
	return &SearchHandler{search: search, keywords: keywords, weights: weights, logger: logger.OrNop(l)}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req httpdto.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	ctx := c.Request.Context()
	var userID *int64
	if id, ok := middleware.UserIDFromContext(ctx); ok {
		userID = &id
	}

	res, err := h.search.Search(ctx, req.ToQuery(userID))
	if err != nil {
		respondError(c, err)
		return
	}

	if userID != nil && strings.TrimSpace(req.Keyword) != "" {
		err := h.keywords.SaveRecentKeyword(ctx, *userID, req.Keyword)
		if err != nil && !errors.Is(err, catalog_errors.ErrInvalidInput) {
			h.logger.Ctx(ctx).Warnf("save recent keyword: %v", err)
		}
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}

func (h *SearchHandler) Autocomplete(c *gin.Context) {
	var req httpdto.AutocompleteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	res, err := h.search.Autocomplete(c.Request.Context(), req.Q, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}

func (h *SearchHandler) PopularKeywords(c *gin.Context) {
	var req httpdto.LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid limit")
		return
	}
	keywords, err := h.search.PopularKeywords(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PopularKeywordsResponse{Keywords: keywords}))
}

// requireUser reads the caller set by middleware.UserIDMiddleware.
func requireUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("missing or invalid "+middleware.UserHeader, "UNAUTHORIZED"))
		return 0, false
	}
	return userID, true
}

func (h *SearchHandler) RecentKeywords(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	pref, err := h.keywords.Preference(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	keywords := []search.RecentKeyword{}
	if pref.RecentSearchEnabled {
		if keywords, err = h.keywords.RecentKeywords(ctx, userID); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.RecentKeywordsResponse{
		Keywords: keywords,
		Enabled:  pref.RecentSearchEnabled,
	}))
}

func (h *SearchHandler) SaveRecentKeyword(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req httpdto.SaveKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if err := h.keywords.SaveRecentKeyword(c.Request.Context(), userID, req.Keyword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse[any](nil))
}

func (h *SearchHandler) RemoveRecentKeyword(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.keywords.RemoveRecentKeyword(c.Request.Context(), userID, c.Param("keyword")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *SearchHandler) ClearRecentKeywords(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.keywords.ClearRecentKeywords(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ClearedResponse{Removed: n}))
}

func (h *SearchHandler) UpdateRecentSetting(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req httpdto.RecentSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	pref, err := h.keywords.SetRecentSearchEnabled(c.Request.Context(), userID, *req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(pref))
}

func (h *SearchHandler) GetWeights(c *gin.Context) {
	setting, err := h.weights.GetWeights(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(setting))
}

func (h *SearchHandler) UpdateWeights(c *gin.Context) {
	var req httpdto.UpdateWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	setting, err := h.weights.UpdateWeights(c.Request.Context(), search.Weights(req.Weights))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(setting))
}
