package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/worker"
)

// ErrNoClients is returned when an operation needs at least one connected page.
var ErrNoClients = errors.New("host: no connected clients")

const clientBuffer = 16

// ClientInfo describes a connected page.
type ClientInfo struct {
	ID          string    `json:"id"`
	Controlled  bool      `json:"controlled"`
	ConnectedAt time.Time `json:"connected_at"`
}

type client struct {
	ClientInfo
	messages chan worker.Message
}

// Hub tracks the pages connected to the event stream and delivers worker messages
// to them. It implements worker.Clients and worker.Notifier.
type Hub struct {
	mu      sync.Mutex
	order   []string // Connection order, oldest first.
	clients map[string]*client
}

var (
	_ worker.Clients  = (*Hub)(nil)
	_ worker.Notifier = (*Hub)(nil)
)

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// connect registers a page. An empty id gets a fresh one. The returned func unregisters it.
func (h *Hub) connect(id string, controlled bool) (*client, func()) {
	if id == "" {
		id = uuid.NewString()
	}
	c := &client{
		ClientInfo: ClientInfo{ID: id, Controlled: controlled, ConnectedAt: time.Now()},
		messages:   make(chan worker.Message, clientBuffer),
	}
	h.mu.Lock()
	if old, ok := h.clients[id]; ok { // Reconnect replaces the old stream.
		close(old.messages)
		h.removeLocked(id)
	}
	h.clients[id] = c
	h.order = append(h.order, id)
	h.mu.Unlock()
	logger.Debugf("client %s connected", id)

	return c, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.clients[id]; ok && cur == c {
			close(c.messages)
			h.removeLocked(id)
			logger.Debugf("client %s disconnected", id)
		}
	}
}

func (h *Hub) removeLocked(id string) {
	delete(h.clients, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Clients lists the connected pages, oldest first.
func (h *Hub) Clients() []ClientInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ClientInfo, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.clients[id].ClientInfo)
	}
	return out
}

// Claim takes control of every connected page and tells them so.
func (h *Hub) Claim(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.order {
		c := h.clients[id]
		if c.Controlled {
			continue
		}
		c.Controlled = true
		h.sendLocked(c, worker.Message{Type: worker.MessageControllerChange})
	}
	return nil
}

// PostAll delivers msg to every page. Pages that stopped reading lose the message.
func (h *Hub) PostAll(_ context.Context, msg worker.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.order {
		h.sendLocked(h.clients[id], msg)
	}
	return nil
}

// OpenWindow asks the most recently connected page to open rawURL.
func (h *Hub) OpenWindow(_ context.Context, rawURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return ErrNoClients
	}
	c := h.clients[h.order[len(h.order)-1]]
	h.sendLocked(c, worker.Message{Type: worker.MessageOpenWindow, URL: rawURL})
	return nil
}

// Show hands the notification to every page for display.
func (h *Hub) Show(_ context.Context, n worker.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return ErrNoClients
	}
	for _, id := range h.order {
		h.sendLocked(h.clients[id], worker.Message{Type: worker.MessageNotification, Tag: n.Tag, Notification: &n})
	}
	return nil
}

// Close dismisses the notification on every page.
func (h *Hub) Close(ctx context.Context, tag string) error {
	return h.PostAll(ctx, worker.Message{Type: worker.MessageNotificationClosed, Tag: tag})
}

func (h *Hub) sendLocked(c *client, msg worker.Message) {
	select {
	case c.messages <- msg:
	default:
		logger.Warnf("client %s is not reading, dropped %s", c.ID, msg.Type)
	}
}
