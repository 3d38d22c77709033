// internal/hub/hub.go
package hub

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventFrame is the wire shape of a server push.
type EventFrame struct {
	Type  string        `json:"type"`
	Event string        `json:"event"`
	Args  []interface{} `json:"args"`
}

// Hub tracks live clients and the groups (one per game code) they have joined.
// All methods are safe for concurrent use and never block on a client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]struct{}
	log     logrus.FieldLogger
}

// New returns an empty hub.
func New(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]struct{}),
		log:     logger,
	}
}

// Register makes a client addressable by its ID. A client already registered under the same ID is closed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.ID]
	h.clients[c.ID] = c
	h.mu.Unlock()

	if old != nil && old != c {
		old.Close()
	}
	h.log.WithField("connection", c.ID).Debug("Client registered")
}

// Unregister forgets a client, removes it from every group and closes it.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	delete(h.clients, connectionID)
	for name, members := range h.groups {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
	h.mu.Unlock()

	if ok {
		c.Close()
		h.log.WithField("connection", connectionID).Debug("Client unregistered")
	}
}

// AddToGroup joins a registered client to group. It returns false for unknown clients.
func (h *Hub) AddToGroup(group, connectionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connectionID]; !ok {
		return false
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connectionID] = struct{}{}
	return true
}

// RemoveFromGroup takes a client out of group.
func (h *Hub) RemoveFromGroup(group, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// GroupSize returns the number of clients joined to group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// BroadcastToGroup queues one event frame for every member of group. Members with a full queue miss it.
func (h *Hub) BroadcastToGroup(group string, event string, args ...interface{}) {
	if args == nil {
		args = []interface{}{}
	}
	data, err := json.Marshal(EventFrame{Type: "event", Event: event, Args: args})
	if err != nil {
		h.log.Errorf("Failed to marshal event %s for group %s: %v", event, group, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Enqueue(data)
	}
	h.log.WithField("group", group).Debugf("Broadcast %s to %d clients", event, len(targets))
}

// Send marshals frame and queues it for a single client. It returns false if the client is unknown,
// closed or backed up.
func (h *Hub) Send(connectionID string, frame interface{}) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.WithField("connection", connectionID).Errorf("Failed to marshal frame: %v", err)
		return false
	}
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Enqueue(data)
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
