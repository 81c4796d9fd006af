package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/trackship/server/src/types"
)

// DefaultPingInterval is the heartbeat probe period. A connection that
// fails to answer one probe before the next is terminated, so worst
// case detection latency is two intervals.
const DefaultPingInterval = 30 * time.Second

// Hub owns the set of open WebSocket connections and their
// liveness/identity state. All registry mutation happens on the Run
// loop or under the hub mutex; dispatch never blocks on a client.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	incoming   chan inboundMsg

	verifier     types.TokenVerifier
	pingInterval time.Duration
	welcome      string

	onConnect []func(string)
	onDisconn []func(string)

	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
}

type inboundMsg struct {
	client *Client
	msg    types.Message
}

// Option adjusts hub construction.
type Option func(*Hub)

// WithPingInterval overrides the heartbeat period. Tests use short
// intervals to exercise eviction.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) { h.pingInterval = d }
}

// WithWelcome overrides the info message sent on connect.
func WithWelcome(text string) Option {
	return func(h *Hub) { h.welcome = text }
}

// New creates a hub. The verifier authenticates tokens arriving on the
// channel; it may be nil, in which case every auth attempt fails.
func New(verifier types.TokenVerifier, logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		incoming:     make(chan inboundMsg, 256),
		verifier:     verifier,
		pingInterval: DefaultPingInterval,
		welcome:      "Connected to TrackShip WebSocket server",
		logger:       logger.With().Str("component", "hub").Logger(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub event loop, including the liveness monitor.
// Call in a goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleMessage(in.client, in.msg)
		case <-ticker.C:
			h.heartbeat()
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a client for registration. A no-op after Stop.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister queues a client for removal. Safe to call for a client
// that is already gone, and a no-op after Stop.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	c.trySend(types.NewInfo(h.welcome))
	h.logger.Info().Str("client_id", c.ID).Int("total", total).Msg("client connected")

	for _, cb := range h.onConnect {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	total := len(h.clients)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Int("total", total).Msg("client disconnected")

	for _, cb := range h.onDisconn {
		cb(c.ID)
	}
}

// heartbeat runs one monitor cycle: evict clients that never answered
// the previous probe, then mark the rest suspect and probe them.
func (h *Hub) heartbeat() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.suspect() {
			h.logger.Warn().Str("client_id", c.ID).Msg("heartbeat timeout, terminating")
			h.removeClient(c)
			continue
		}
		c.trySend(types.NewPing())
	}
}

// OnConnection registers a callback for new connections. Must be
// called before Run.
func (h *Hub) OnConnection(cb func(string)) {
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback for disconnections. Must be
// called before Run.
func (h *Hub) OnDisconnection(cb func(string)) {
	h.onDisconn = append(h.onDisconn, cb)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectedClients returns a list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}
