package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorequest/internal/model"
)

// Event is a real-time notification pushed to connected clients.
type Event struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewEvent creates an Event whose Type is "<entity>_<action>".
func NewEvent(entity, action string, id int64, data any) Event {
	return Event{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// ChoreEvent announces a change to a chore to every client.
func ChoreEvent(action string, c *model.Chore) Event {
	ev := NewEvent("chore", action, c.ID, c)
	if c.AssigneeID != nil {
		ev.UserID = *c.AssigneeID
	}
	return ev
}

// AchievementUnlocked is the in-app toast for a freshly unlocked achievement.
func AchievementUnlocked(a model.Achievement) Event {
	ev := NewEvent("achievement", "unlocked", a.ID, a)
	ev.UserID = a.UserID
	return ev
}

// Hub tracks connected clients by user.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Broadcast sends ev to every connected client.
func (h *Hub) Broadcast(ev Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		h.deliver(set, data)
	}
}

// SendToUser sends ev only to the connections of userID.
func (h *Hub) SendToUser(userID int64, ev Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.clients[userID], data)
}

func (h *Hub) encode(ev Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "type", ev.Type, "error", err)
		return nil, false
	}
	return data, true
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(set map[*Client]struct{}, data []byte) {
	for c := range set {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping event", "user_id", c.userID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
