package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"torchmarket/internal/stream"
)

// StreamHandler upgrades /api/v1/stream to a websocket carrying projected
// market events.
type StreamHandler struct {
	Hub    *stream.Hub
	Logger *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stream", h.stream)
}

func (h *StreamHandler) stream(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusServiceUnavailable, "stream disabled", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	err = h.Hub.Serve(c.Request.Context(), conn)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.Logger.Debug("stream subscriber gone", zap.Error(err))
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
