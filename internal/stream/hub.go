package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"torchmarket/internal/models"
)

// Message is the wire envelope pushed to websocket subscribers. Payload is
// the event payload exactly as the engine logged it.
type Message struct {
	EventID uint64          `json:"event_id"`
	Type    string          `json:"type"`
	BetID   *uint64         `json:"bet_id,omitempty"`
	Bucket  *int64          `json:"bucket,omitempty"`
	Bettor  string          `json:"bettor,omitempty"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Hub fans projected events out to websocket subscribers. Subscribers with a
// full send buffer miss messages rather than stall the projection; the feed
// is a live tail, clients re-query the HTTP read API to catch up.
type Hub struct {
	Logger     *zap.Logger
	SendBuffer int

	mu   sync.Mutex
	subs map[chan Message]struct{}
}

func NewHub(logger *zap.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Hub{
		Logger:     logger,
		SendBuffer: sendBuffer,
		subs:       make(map[chan Message]struct{}),
	}
}

// PublishEvent satisfies projection.Publisher.
func (h *Hub) PublishEvent(evt models.MarketEvent) {
	if h == nil {
		return
	}
	msg := Message{
		EventID: evt.ID,
		Type:    evt.Type,
		BetID:   evt.BetID,
		Bucket:  evt.Bucket,
		Bettor:  evt.Bettor,
		Payload: json.RawMessage(evt.Payload),
		At:      evt.CreatedAt,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber, drop.
		}
	}
}

func (h *Hub) subscribe() chan Message {
	ch := make(chan Message, h.SendBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Message) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// SubscriberCount is exposed for the overview endpoint and tests.
func (h *Hub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Serve pumps hub messages onto an accepted connection until the client
// disconnects or ctx is done.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) error {
	if h == nil || conn == nil {
		return nil
	}
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Drain client frames so pings and close frames are processed.
	readCtx := conn.CloseRead(ctx)

	for {
		select {
		case <-readCtx.Done():
			return readCtx.Err()
		case msg := <-ch:
			raw, err := json.Marshal(msg)
			if err != nil {
				h.Logger.Warn("stream message marshal failed", zap.Error(err))
				continue
			}
			writeCtx, cancel := context.WithTimeout(readCtx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
