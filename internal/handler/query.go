package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"torchmarket/internal/models"
	"torchmarket/internal/repository"
)

// QueryHandler serves the projection read models: user bets, rollups, the
// windowed bet list and the dashboard overview. Everything here may lag the
// engine by the projection's poll interval.
type QueryHandler struct {
	Repo repository.Repository
}

func (h *QueryHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/bets", h.listBets)
	group.GET("/users/:address/bets", h.userBets)
	group.GET("/users/:address/stats", h.userStats)
	group.GET("/overview", h.overview)
}

// betView is a projected bet plus its bucket's resolution state, so the UI
// can tell claimable from still-aggregating without a second request.
type betView struct {
	models.ProjectedBet
	BucketComplete bool `json:"bucket_complete"`
}

func (h *QueryHandler) listBets(c *gin.Context) {
	params, ok := h.listParams(c)
	if !ok {
		return
	}
	h.respondBets(c, params)
}

func (h *QueryHandler) userBets(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		Error(c, http.StatusBadRequest, "address required", nil)
		return
	}
	params, ok := h.listParams(c)
	if !ok {
		return
	}
	params.Bettor = &address
	h.respondBets(c, params)
}

func (h *QueryHandler) respondBets(c *gin.Context, params repository.ListProjectedBetsParams) {
	ctx := c.Request.Context()
	items, err := h.Repo.ListProjectedBets(ctx, params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountProjectedBets(ctx, params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	bucketIDs := make([]int64, 0, len(items))
	seen := map[int64]struct{}{}
	for _, item := range items {
		if _, ok := seen[item.Bucket]; ok {
			continue
		}
		seen[item.Bucket] = struct{}{}
		bucketIDs = append(bucketIDs, item.Bucket)
	}
	buckets, err := h.Repo.ListProjectedBucketsByIDs(ctx, bucketIDs)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	complete := make(map[int64]bool, len(buckets))
	for _, b := range buckets {
		complete[b.ID] = b.AggregationComplete
	}

	views := make([]betView, 0, len(items))
	for _, item := range items {
		views = append(views, betView{
			ProjectedBet:   item,
			BucketComplete: complete[item.Bucket],
		})
	}
	Ok(c, views, map[string]any{
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func (h *QueryHandler) userStats(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		Error(c, http.StatusBadRequest, "address required", nil)
		return
	}
	stats, err := h.Repo.GetUserStats(c.Request.Context(), address)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if stats == nil {
		stats = &models.UserStats{
			Address:     address,
			TotalStaked: decimal.Zero,
			TotalPayout: decimal.Zero,
		}
	}
	Ok(c, stats, nil)
}

func (h *QueryHandler) overview(c *gin.Context) {
	overview, err := h.Repo.Overview(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, overview, nil)
}

func (h *QueryHandler) listParams(c *gin.Context) (repository.ListProjectedBetsParams, bool) {
	params := repository.ListProjectedBetsParams{
		Limit:   50,
		OrderBy: strings.TrimSpace(c.Query("order_by")),
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			Error(c, http.StatusBadRequest, "invalid limit", nil)
			return params, false
		}
		params.Limit = v
	}
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			Error(c, http.StatusBadRequest, "invalid offset", nil)
			return params, false
		}
		params.Offset = v
	}
	if raw := strings.TrimSpace(c.Query("from_ts")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid from_ts", nil)
			return params, false
		}
		params.FromTs = &v
	}
	if raw := strings.TrimSpace(c.Query("to_ts")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid to_ts", nil)
			return params, false
		}
		params.ToTs = &v
	}
	if raw := strings.TrimSpace(c.Query("asc")); raw != "" {
		asc := raw == "true" || raw == "1"
		params.Asc = &asc
	}
	return params, true
}
