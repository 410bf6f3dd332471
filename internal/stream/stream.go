package stream

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ksred/tradedesk-api/internal/trading"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/middleware"
	"github.com/rs/zerolog/log"
)

const (
	FrameCountdown = "countdown"
	FrameSettled   = "settled"

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// TradeSource supplies the trades a connection follows
type TradeSource interface {
	OpenTrades(userID string) ([]types.Trade, error)
	GetTrade(tradeID, callerID string, isAdmin bool) (*types.Trade, error)
}

// Frame is one message pushed to the client
type Frame struct {
	Type string `json:"type"`
	types.CountdownResponse
}

// Handler pushes the caller's open trade countdowns over a websocket once
// per interval. When a followed trade is processed it sends one final
// settled frame and stops following it.
type Handler struct {
	trades   TradeSource
	interval time.Duration
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewHandler(trades TradeSource, interval time.Duration, allowedOrigins []string) *Handler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Handler{
		trades:   trades,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		now: time.Now,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// StreamHandler upgrades the request. It runs behind JWTAuth, which accepts
// the token as a query parameter for browser clients.
func (h *Handler) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		logger := log.With().
			Str("component", "trade_stream").
			Str("user_id", userID).
			Logger()

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		logger.Debug().Msg("stream opened")
		h.serve(conn, userID)
		logger.Debug().Msg("stream closed")
	}
}

func (h *Handler) serve(conn *websocket.Conn, userID string) {
	done := make(chan struct{})

	// Clients only talk to close the stream; reading also services pongs
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	pinger := time.NewTicker(pongWait * 9 / 10)
	defer pinger.Stop()

	tracked := make(map[string]bool)
	if !h.push(conn, userID, tracked) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-pinger.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ticker.C:
			if !h.push(conn, userID, tracked) {
				return
			}
		}
	}
}

// push writes one tick of frames and reports whether the connection is
// still usable
func (h *Handler) push(conn *websocket.Conn, userID string, tracked map[string]bool) bool {
	frames, err := h.Snapshot(userID, tracked)
	if err != nil {
		log.Error().Err(err).Str("component", "trade_stream").Str("user_id", userID).Msg("failed to load trades")
		return true
	}
	for _, frame := range frames {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			return false
		}
	}
	return true
}

// Snapshot builds the frames for one tick and updates tracked, the set of
// trade IDs the connection follows.
func (h *Handler) Snapshot(userID string, tracked map[string]bool) ([]Frame, error) {
	open, err := h.trades.OpenTrades(userID)
	if err != nil {
		return nil, err
	}

	now := h.now()
	frames := make([]Frame, 0, len(open))
	seen := make(map[string]bool, len(open))

	for i := range open {
		seen[open[i].TradeID] = true
		tracked[open[i].TradeID] = true
		frames = append(frames, Frame{
			Type:              FrameCountdown,
			CountdownResponse: *trading.CountdownOf(&open[i], now),
		})
	}

	for tradeID := range tracked {
		if seen[tradeID] {
			continue
		}
		delete(tracked, tradeID)

		trade, err := h.trades.GetTrade(tradeID, userID, false)
		if err != nil {
			// Deleted by an admin
			continue
		}
		frames = append(frames, Frame{
			Type:              FrameSettled,
			CountdownResponse: *trading.CountdownOf(trade, now),
		})
	}

	return frames, nil
}
