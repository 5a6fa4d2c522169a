package trade

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/delvtech/agent0-sub002/internal/logger"
	"github.com/delvtech/agent0-sub002/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// PoolUpdate is pushed to websocket clients after every state change.
type PoolUpdate struct {
	Type          string              `json:"type"`
	PoolID        string              `json:"pool_id"`
	Symbol        string              `json:"symbol"`
	Action        string              `json:"action"`
	SpotPrice     decimal.NullDecimal `json:"spot_price"`
	APR           decimal.NullDecimal `json:"apr"`
	ShareReserves decimal.Decimal     `json:"share_reserves"`
	BondReserves  decimal.Decimal     `json:"bond_reserves"`
	Timestamp     time.Time           `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans pool updates out to connected websocket clients. Only Run
// touches the client set; each client has a single writer goroutine.
type WSHub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        zerolog.Logger
}

// NewWSHub creates a hub. Call Run before serving HandleWS.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger.GetForComponent("ws_hub"),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.WebSocketClients.Inc()
			h.log.Info().Int("total", len(h.clients)).Msg("ws client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Info().Int("total", len(h.clients)).Msg("ws client disconnected")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer.
					h.drop(c)
				}
			}
		}
	}
}

func (h *WSHub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WebSocketClients.Dec()
}

// Broadcast queues an update. It never blocks the trade path; updates are
// dropped when the queue is full.
func (h *WSHub) Broadcast(msg PoolUpdate) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal pool update")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Str("pool_id", msg.PoolID).Msg("broadcast queue full, update dropped")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS handles GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *WSHub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
