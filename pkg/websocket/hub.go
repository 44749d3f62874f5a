// Package websocket maintains live dashboard connections for operations
// staff. Alerts and case updates are pushed to connected consoles as
// they are raised.
package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/logger"
)

// Message is the wire format exchanged with dashboard clients.
type Message struct {
	Type      string                 `json:"type"`
	CaseKey   string                 `json:"case_key,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// MessageHandler processes an inbound message from a client.
type MessageHandler func(client *Client, msg *Message)

// Hub tracks connected dashboard clients and the case rooms they watch.
type Hub struct {
	clients map[string]*Client
	cases   map[string]map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *Message

	handlers map[string]MessageHandler

	mu sync.RWMutex
}

// NewHub creates an empty hub. Call Run in a goroutine before
// registering clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		cases:      make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message, 256),
		handlers:   make(map[string]MessageHandler),
	}
}

// Run processes register, unregister and broadcast events until the
// process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case msg := <-h.Broadcast:
			h.SendToAll(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if existing, ok := h.clients[client.ID]; ok && existing != client {
		if existing.markClosed() {
			close(existing.Send)
		}
		h.removeFromCaseLocked(existing)
	}
	h.clients[client.ID] = client
	h.mu.Unlock()

	logger.Debug("dashboard client connected",
		zap.String("client_id", client.ID),
		zap.String("role", client.Role),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.ID]; ok && current == client {
		delete(h.clients, client.ID)
		if client.markClosed() {
			close(client.Send)
		}
	}
	h.removeFromCaseLocked(client)
	h.mu.Unlock()

	logger.Debug("dashboard client disconnected", zap.String("client_id", client.ID))
}

func (h *Hub) removeFromCaseLocked(client *Client) {
	caseKey := client.GetCase()
	if caseKey == "" {
		return
	}
	if members, ok := h.cases[caseKey]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.cases, caseKey)
		}
	}
	client.setCase("")
}

// AddClientToCase subscribes a connected client to a case room.
func (h *Hub) AddClientToCase(clientID, caseKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	if h.cases[caseKey] == nil {
		h.cases[caseKey] = make(map[string]*Client)
	}
	h.cases[caseKey][clientID] = client
	client.setCase(caseKey)
}

// RemoveClientFromCase unsubscribes a client from a case room, removing
// the room once it empties.
func (h *Hub) RemoveClientFromCase(clientID, caseKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.cases[caseKey]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.cases, caseKey)
		}
	}
	if client, ok := h.clients[clientID]; ok {
		client.setCase("")
	}
}

// SendToUser delivers a message to a single connected client.
func (h *Hub) SendToUser(clientID string, msg *Message) {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	client.SendMessage(msg)
}

// SendToCase delivers a message to every client watching the case.
func (h *Hub) SendToCase(caseKey string, msg *Message) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.cases[caseKey]))
	for _, client := range h.cases[caseKey] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		client.SendMessage(msg)
	}
}

// SendToAll delivers a message to every connected client.
func (h *Hub) SendToAll(msg *Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// RegisterHandler binds an inbound message type to a handler.
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// HandleMessage dispatches an inbound message to its handler. Unknown
// types are logged and dropped.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	handler, ok := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !ok {
		logger.Debug("unhandled dashboard message type",
			zap.String("type", msg.Type),
			zap.String("client_id", client.ID),
		)
		return
	}
	handler(client, msg)
}

// GetClient returns the connected client with the given ID.
func (h *Hub) GetClient(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	return client, ok
}

// GetClientsInCase returns every client subscribed to a case room.
func (h *Hub) GetClientsInCase(caseKey string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Client, 0, len(h.cases[caseKey]))
	for _, client := range h.cases[caseKey] {
		members = append(members, client)
	}
	return members
}

// GetClientCount reports the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetCaseCount reports the number of active case rooms.
func (h *Hub) GetCaseCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cases)
}
