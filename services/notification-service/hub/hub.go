// Package hub fans report notifications out to connected SSE clients.
// Status updates go to the reporter only; new reports go to the staff of
// the office that owns the category, and to administrators.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"participium/pkg/identity"
	"participium/pkg/queue"
)

const clientBuffer = 10

type Client struct {
	UserID  int64
	Role    identity.BroadRole
	Offices []int64
	Send    chan queue.Notification
}

func NewClient(userID int64, role identity.BroadRole, offices []int64) *Client {
	return &Client{UserID: userID, Role: role, Offices: offices, Send: make(chan queue.Notification, clientBuffer)}
}

// Wants reports whether n is addressed to c.
func (c *Client) Wants(n queue.Notification) bool {
	switch n.Type {
	case queue.TypeStatusUpdate:
		return n.UserID != 0 && c.UserID == n.UserID
	case queue.TypeNewReport:
		if c.Role.Is(identity.RoleAdmin) {
			return true
		}
		if !c.Role.Is(identity.RoleStaff) {
			return false
		}
		for _, id := range c.Offices {
			if id == n.OfficeID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan queue.Notification
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan queue.Notification, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Int64("user_id", client.UserID).Int("clients", total).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Int64("user_id", client.UserID).Int("clients", total).Msg("client unregistered")

		case n := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.Wants(n) {
					continue
				}
				select {
				case client.Send <- n:
				default:
					h.log.Warn().Int64("user_id", client.UserID).Int64("report_id", n.ReportID).Msg("client buffer full, notification dropped")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds c. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues n for delivery.
func (h *Hub) Broadcast(n queue.Notification) {
	select {
	case h.broadcast <- n:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Pending() int {
	return len(h.broadcast)
}
