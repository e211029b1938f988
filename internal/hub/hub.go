// Package hub holds the websocket subscribers of job status topics.
package hub

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/sirupsen/logrus"
)

// Hub keeps connected clients grouped in rooms, one room per status topic.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	mu      sync.RWMutex
	logger  logrus.FieldLogger
}

// Stats is a snapshot of the hub.
type Stats struct {
	TotalClients int            `json:"total_clients"`
	TotalRooms   int            `json:"total_rooms"`
	Rooms        map[string]int `json:"rooms"`
}

func New(logger logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

// Run logs hub statistics periodically until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := h.Stats()
			h.logger.WithFields(logrus.Fields{"clients": stats.TotalClients, "rooms": stats.TotalRooms}).Debug("hub stats")
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.logger.WithField("client_id", client.id).Debug("client registered")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for room := range client.rooms {
			h.leaveLocked(client, room)
		}
		close(client.send)
	}
	h.mu.Unlock()
	h.logger.WithField("client_id", client.id).Debug("client unregistered")
}

// Broadcast sends payload to every client in the room of topic. Clients whose
// send buffer is full miss the message.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[topic] {
		select {
		case client.send <- payload:
		default:
			h.logger.WithFields(logrus.Fields{"client_id": client.id, "topic": topic}).Warn("client send buffer full")
		}
	}
}

// Join adds client to the room of room, which is either a topic or a
// resource id.
func (h *Hub) Join(client *Client, room string) {
	topic := roomTopic(room)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.rooms[topic] == nil {
		h.rooms[topic] = make(map[*Client]bool)
	}
	h.rooms[topic][client] = true
	client.rooms[topic] = true
	h.logger.WithFields(logrus.Fields{"client_id": client.id, "topic": topic}).Debug("client joined")
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, roomTopic(room))
}

func (h *Hub) leaveLocked(client *Client, topic string) {
	if clients, ok := h.rooms[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, topic)
		}
	}
	delete(client.rooms, topic)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make(map[string]int, len(h.rooms))
	for room, clients := range h.rooms {
		rooms[room] = len(clients)
	}
	return Stats{TotalClients: len(h.clients), TotalRooms: len(h.rooms), Rooms: rooms}
}

func roomTopic(room string) string {
	if strings.HasPrefix(room, relay.TopicPrefix) {
		return room
	}
	return relay.Topic(room)
}
