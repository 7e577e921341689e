package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"torchmarket/internal/market"
)

// MarketHandler exposes the settlement engine: placement, simulation,
// claims, bucket reads, batch processing and the admin price feed.
type MarketHandler struct {
	Engine     *market.Engine
	AdminToken string
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.POST("/bets", h.placeBet)
	group.POST("/bets/simulate", h.simulate)
	group.POST("/bets/:id/claim", h.claim)
	group.GET("/bets/:id", h.getBet)

	group.GET("/buckets/:id", h.getBucket)
	group.GET("/buckets/:id/stats", h.getBucketStats)
	group.POST("/buckets/:id/process", h.processBatch)

	admin := group.Group("/admin")
	admin.Use(h.requireAdmin)
	admin.POST("/prices", h.setPrice)
}

type placeBetRequest struct {
	Bettor          string `json:"bettor"`
	TargetTimestamp int64  `json:"target_timestamp"`
	PriceMin        int64  `json:"price_min"`
	PriceMax        int64  `json:"price_max"`
	Stake           string `json:"stake"`
}

func (h *MarketHandler) placeBet(c *gin.Context) {
	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	stake, err := decimal.NewFromString(strings.TrimSpace(req.Stake))
	if err != nil {
		MarketError(c, market.ErrStakeInvalid)
		return
	}
	bet, err := h.Engine.PlaceBet(c.Request.Context(), market.PlaceBetParams{
		Bettor:          req.Bettor,
		TargetTimestamp: req.TargetTimestamp,
		PriceMin:        req.PriceMin,
		PriceMax:        req.PriceMax,
		Stake:           stake,
	})
	if err != nil {
		MarketError(c, err)
		return
	}
	Ok(c, bet, nil)
}

type simulateRequest struct {
	TargetTimestamp int64  `json:"target_timestamp"`
	PriceMin        int64  `json:"price_min"`
	PriceMax        int64  `json:"price_max"`
	Stake           string `json:"stake"`
}

func (h *MarketHandler) simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	stake, err := decimal.NewFromString(strings.TrimSpace(req.Stake))
	if err != nil {
		Ok(c, market.Simulation{ErrorMessage: market.ErrStakeInvalid.Error()}, nil)
		return
	}
	sim := h.Engine.SimulatePlaceBet(req.TargetTimestamp, req.PriceMin, req.PriceMax, stake)
	Ok(c, sim, nil)
}

type claimRequest struct {
	Claimant string `json:"claimant"`
}

func (h *MarketHandler) claim(c *gin.Context) {
	betID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.Claimant) == "" {
		Error(c, http.StatusBadRequest, "claimant required", nil)
		return
	}
	payout, err := h.Engine.ClaimBet(c.Request.Context(), betID, req.Claimant)
	if err != nil {
		MarketError(c, err)
		return
	}
	Ok(c, gin.H{"bet_id": betID, "payout": payout}, nil)
}

func (h *MarketHandler) getBet(c *gin.Context) {
	betID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	bet, err := h.Engine.GetBet(c.Request.Context(), betID)
	if err != nil {
		MarketError(c, err)
		return
	}
	Ok(c, bet, nil)
}

func (h *MarketHandler) getBucket(c *gin.Context) {
	bucketID, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	bucket, err := h.Engine.GetBucketInfo(c.Request.Context(), bucketID)
	if err != nil {
		MarketError(c, err)
		return
	}
	Ok(c, bucket, nil)
}

func (h *MarketHandler) getBucketStats(c *gin.Context) {
	bucketID, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	stats, err := h.Engine.GetBucketStats(c.Request.Context(), bucketID)
	if err != nil {
		MarketError(c, err)
		return
	}
	Ok(c, stats, nil)
}

type processBatchRequest struct {
	MaxCount int `json:"max_count"`
}

func (h *MarketHandler) processBatch(c *gin.Context) {
	bucketID, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	// Body is optional; zero falls back to the configured batch size.
	var req processBatchRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.Engine.ProcessBatch(c.Request.Context(), bucketID, req.MaxCount)
	if err != nil {
		MarketError(c, err)
		return
	}
	Ok(c, result, nil)
}

type setPriceRequest struct {
	Bucket          *int64 `json:"bucket"`
	TargetTimestamp *int64 `json:"target_timestamp"`
	Price           int64  `json:"price"`
}

// setPrice accepts either a bucket id or a raw target timestamp.
func (h *MarketHandler) setPrice(c *gin.Context) {
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var bucket int64
	switch {
	case req.Bucket != nil:
		bucket = *req.Bucket
		if err := h.Engine.SetResolvedPrice(c.Request.Context(), bucket, req.Price); err != nil {
			MarketError(c, err)
			return
		}
	case req.TargetTimestamp != nil:
		var err error
		bucket, err = h.Engine.SetResolvedPriceForTimestamp(c.Request.Context(), *req.TargetTimestamp, req.Price)
		if err != nil {
			MarketError(c, err)
			return
		}
	default:
		Error(c, http.StatusBadRequest, "bucket or target_timestamp required", nil)
		return
	}
	Ok(c, gin.H{"bucket": bucket, "price": req.Price}, nil)
}

func (h *MarketHandler) requireAdmin(c *gin.Context) {
	if strings.TrimSpace(h.AdminToken) == "" {
		Error(c, http.StatusServiceUnavailable, "admin token not configured", nil)
		c.Abort()
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.AdminToken)) != 1 {
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
		c.Abort()
		return
	}
	c.Next()
}

func parseUintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return v, true
}

func parseIntParam(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return v, true
}
