package hub

import (
	"sync"
	"time"

	"github.com/trackship/server/src/types"
)

// Client wraps a WebSocket connection and manages message flow.
// Identity fields stay unset until the client sends a valid auth
// message; until then it is treated as anonymous and non-admin.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Message
	connectedAt time.Time

	alive    bool
	userID   string
	isAdmin  bool
	watching map[string]bool

	mu     sync.RWMutex
	done   chan struct{}
	closed bool
}

// NewClient creates a new WebSocket client wrapper. A fresh client
// counts as alive until the first heartbeat cycle says otherwise.
func NewClient(id string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Message, 256),
		connectedAt: time.Now(),
		alive:       true,
		watching:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	watching := make([]string, 0, len(c.watching))
	for tn := range c.watching {
		watching = append(watching, tn)
	}
	return types.ClientInfo{
		ID:            c.ID,
		ConnectedAt:   c.connectedAt,
		Authenticated: c.userID != "",
		Admin:         c.isAdmin,
		Watching:      watching,
	}
}

// UserID returns the authenticated user id, or "" if anonymous.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// IsAdmin reports whether the client authenticated with the admin role.
func (c *Client) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isAdmin
}

func (c *Client) setIdentity(id types.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id.UserID
	c.isAdmin = id.IsAdmin()
}

func (c *Client) markAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
}

// suspect clears the liveness flag and reports its previous value.
// The monitor calls this once per heartbeat cycle.
func (c *Client) suspect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

// addWatch records client intent to follow a tracking number. Dispatch
// stays audience-based; the set is for introspection only.
func (c *Client) addWatch(trackingNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching[trackingNumber] = true
}

func (c *Client) removeWatch(trackingNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watching, trackingNumber)
}

// ReadPump reads messages from the WebSocket and routes to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var msg types.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case c.hub.incoming <- inboundMsg{client: c, msg: msg}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps. Safe to call repeatedly.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}

// trySend queues a message without blocking. Returns false when the
// client is already closed or its buffer is full; the caller drops the
// message either way.
func (c *Client) trySend(msg types.Message) (sent bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}
