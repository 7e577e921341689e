package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"torchmarket/internal/market"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// MarketError maps an engine rejection onto an HTTP status and surfaces the
// machine-readable reason in meta. Unknown errors fall through as 500.
func MarketError(c *gin.Context, err error) {
	code := market.CodeOf(err)
	if code == "" {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	status := http.StatusConflict
	switch code {
	case market.CodePriceRangeInvalid, market.CodeLeadTimeTooShort,
		market.CodeStakeInvalid, market.CodeBettorRequired,
		market.CodePriceInvalid:
		status = http.StatusBadRequest
	case market.CodeBetNotFound, market.CodeBucketNotFound:
		status = http.StatusNotFound
	case market.CodeNotBetOwner:
		status = http.StatusForbidden
	}
	Error(c, status, err.Error(), map[string]any{"reason": string(code)})
}
