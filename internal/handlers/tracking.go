package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bazar_back_end/internal/cache"
	"bazar_back_end/internal/middleware"
	"bazar_back_end/internal/tracking"
)

const (
	wsPingEvery = 30 * time.Second
	wsWriteWait = 10 * time.Second
)

type TrackingHandler struct {
	tracking   *tracking.Service
	subscriber cache.Subscriber
	upgrader   websocket.Upgrader
}

// NewTrackingHandler accepts websocket connections from the listed origins.
// An empty list accepts any origin.
func NewTrackingHandler(t *tracking.Service, sub cache.Subscriber, origins []string) *TrackingHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &TrackingHandler{
		tracking:   t,
		subscriber: sub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// Track handles GET /orders/track?orderNumber=.
func (h *TrackingHandler) Track(c *gin.Context) {
	number := tracking.NormalizeNumber(c.Query("orderNumber"))
	if number == "" {
		badRequest(c, "orderNumber is required")
		return
	}
	view, err := h.tracking.Public(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

type liveMessage struct {
	Type   string                 `json:"type"`
	Order  *tracking.PublicView   `json:"order,omitempty"`
	Update *tracking.StatusUpdate `json:"update,omitempty"`
}

// Live handles GET /orders/track/ws. It sends the current view, then every
// status change published for the order.
func (h *TrackingHandler) Live(c *gin.Context) {
	number := tracking.NormalizeNumber(c.Query("orderNumber"))
	if number == "" {
		badRequest(c, "orderNumber is required")
		return
	}
	ctx := c.Request.Context()
	logger := middleware.LoggerFrom(c).With("order_number", number)

	// Subscribe before reading the view so no change falls between the two.
	updates, unsubscribe, err := h.subscriber.Subscribe(ctx, cache.StatusChannel(number))
	if err != nil {
		logger.Error("status subscription failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live tracking unavailable"})
		return
	}
	defer unsubscribe()

	view, err := h.tracking.Public(ctx, number)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The reader only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, liveMessage{Type: "snapshot", Order: &view}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case raw, ok := <-updates:
			if !ok {
				return
			}
			var u tracking.StatusUpdate
			if err := json.Unmarshal(raw, &u); err != nil {
				logger.Warn("malformed status update", "error", err)
				continue
			}
			if err := h.write(conn, liveMessage{Type: "status", Update: &u}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *TrackingHandler) write(conn *websocket.Conn, msg liveMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
