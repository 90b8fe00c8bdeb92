package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tier-ladder/internal/domain"
)

// Message types
const (
	MessageTypeChallengeEvent = "challenge_event"
	MessageTypeSubscribe      = "subscribe"
	MessageTypeUnsubscribe    = "unsubscribe"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeError          = "error"
)

// ErrBroadcastFull is returned by Publish when the hub cannot keep up
var ErrBroadcastFull = errors.New("websocket broadcast channel full")

// Message represents a WebSocket message
type Message struct {
	Type         string    `json:"type"`
	TournamentID string    `json:"tournament_id,omitempty"`
	Data         any       `json:"data,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Hub fans challenge events out to clients subscribed to a tournament.
// Clients without a subscription receive events from every tournament.
type Hub struct {
	// Subscribed clients by tournament ID
	clients map[string]map[*Client]bool

	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client       *Client
	tournamentID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.tournamentID]; !ok {
				h.clients[req.tournamentID] = make(map[*Client]bool)
			}
			h.clients[req.tournamentID][req.client] = true
			req.client.subscribed++
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "tournament_id", req.tournamentID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.tournamentID]; ok && clients[req.client] {
				delete(clients, req.client)
				req.client.subscribed--
				if len(clients) == 0 {
					delete(h.clients, req.tournamentID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "tournament_id", req.tournamentID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for tournamentID, clients := range h.clients {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, tournamentID)
			}
		}
	}
	close(client.send)
	h.logger.Debug("client unregistered", "client_id", client.id)
}

// broadcastMessage sends a message to the tournament's subscribers and to
// every client that has not narrowed its feed
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.allClients {
		if client.subscribed > 0 && !h.clients[message.TournamentID][client] {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// Publish queues a challenge event for broadcast. It never blocks.
func (h *Hub) Publish(_ context.Context, event domain.ChallengeEvent) error {
	message := &Message{
		Type:         MessageTypeChallengeEvent,
		TournamentID: event.TournamentID,
		Data:         event,
		Timestamp:    event.Timestamp,
	}

	select {
	case h.broadcast <- message:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe narrows a client's feed to include a tournament
func (h *Hub) Subscribe(client *Client, tournamentID string) {
	h.subscribe <- &subscriptionRequest{client: client, tournamentID: tournamentID}
}

// Unsubscribe removes a tournament from a client's feed
func (h *Hub) Unsubscribe(client *Client, tournamentID string) {
	h.unsubscribe <- &subscriptionRequest{client: client, tournamentID: tournamentID}
}

// SubscriberCount returns the number of subscribers for a tournament
func (h *Hub) SubscriberCount(tournamentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tournamentID])
}

// TotalConnections returns the total number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
