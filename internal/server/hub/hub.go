// Package hub tracks active websocket viewers per share token and pushes
// shared-view state frames to them.
package hub

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/teamcodes/internal/logging"
)

// Hub maintains the set of connected viewer clients keyed by share token.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With("module", "hub"),
	}
}

// Run processes client registration until ctx is cancelled, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for c := range clients {
					c.closeSend()
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.token] == nil {
				h.clients[c.token] = make(map[*Client]bool)
			}
			h.clients[c.token][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[c.token]; ok {
				if _, ok := clients[c]; ok {
					delete(clients, c)
					c.closeSend()
					if len(clients) == 0 {
						delete(h.clients, c.token)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// ActiveViewers reports how many websocket clients currently watch the
// given share token.
func (h *Hub) ActiveViewers(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[token])
}

// DisconnectToken drops every client watching the given token. Used when
// a share link is revoked so sockets do not linger until the next poll.
func (h *Hub) DisconnectToken(token string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[token]))
	for c := range h.clients[token] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeSend()
	}
}
