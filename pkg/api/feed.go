// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
)

const feedSendBuffer = 64

// Hub fans bid decisions out to websocket subscribers. Slow clients are
// dropped rather than allowed to back-pressure the decision path.
type Hub struct {
	log     log.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	clients map[*feedClient]struct{}

	upgrader websocket.Upgrader
}

type feedClient struct {
	conn *websocket.Conn
	send chan *core.BidDecision
}

// NewHub creates a decision feed hub
func NewHub(logger log.Logger, metrics *metric.Metrics) *Hub {
	return &Hub{
		log:     logger,
		metrics: metrics,
		clients: map[*feedClient]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Broadcast delivers a decision to every subscriber without blocking.
// Clients whose send queue is full are disconnected.
func (h *Hub) Broadcast(decision *core.BidDecision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- decision:
		default:
			h.dropLocked(c)
			h.log.Warn("dropping slow decision feed client")
		}
	}
}

// ServeHTTP upgrades the connection and streams decisions until the
// client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan *core.BidDecision, feedSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.FeedClients.Inc()

	go h.writeLoop(client)
	h.readLoop(client)
}

// writeLoop pushes queued decisions to the client
func (h *Hub) writeLoop(c *feedClient) {
	for decision := range c.send {
		if err := c.conn.WriteJSON(decision); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// readLoop drains client frames so pings are answered; any read error
// ends the subscription.
func (h *Hub) readLoop(c *feedClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
	h.metrics.FeedClients.Dec()
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}
