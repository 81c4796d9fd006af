package wsclient

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
	"github.com/trackship/server/src/types"
)

// Reconnection policy defaults, matching the browser client.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 3 * time.Second
)

// State is the connection state of the client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "disconnected"
	}
}

// Dialer opens a WebSocket connection. Abstracted for tests.
type Dialer interface {
	Dial(url string) (types.Conn, error)
}

type netDialer struct{}

func (netDialer) Dial(url string) (types.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }
func (w *wsConn) ReadJSON(v any) error  { return w.conn.ReadJSON(v) }
func (w *wsConn) Close() error          { return w.conn.Close() }

// subscription holds one observer of a tracking number. Kept behind a
// pointer so detaching works by identity.
type subscription struct {
	fn func(types.Message)
}

// Client maintains a single logical real-time session against the
// server, reconnecting through transient failures with a bounded
// number of attempts and a fixed delay. After the attempts are
// exhausted it stops retrying and emits one give-up notice; the
// caller is expected to fall back to manual refresh.
type Client struct {
	url        string
	token      string
	dialer     Dialer
	maxRetries int
	retryDelay time.Duration
	onGiveUp   func()
	logger     zerolog.Logger

	mu          sync.Mutex
	state       State
	conn        types.Conn
	subscribers map[string][]*subscription
	done        chan struct{}
	stopped     bool

	// writeMu serializes WriteJSON calls; the connection allows only
	// one concurrent writer.
	writeMu sync.Mutex
}

// Option adjusts client construction.
type Option func(*Client)

// WithToken authenticates the session right after every successful
// connect.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithDialer replaces the network dialer. Tests use this to simulate
// connection failures.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithRetryPolicy overrides the bounded-retry parameters.
func WithRetryPolicy(maxAttempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxAttempts
		c.retryDelay = delay
	}
}

// WithGiveUpNotice registers the single user-visible notice emitted
// when reconnection attempts are exhausted.
func WithGiveUpNotice(fn func()) Option {
	return func(c *Client) { c.onGiveUp = fn }
}

// New creates a client for the given WebSocket URL.
func New(url string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		url:         url,
		dialer:      netDialer{},
		maxRetries:  DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      logger.With().Str("component", "wsclient").Logger(),
		subscribers: make(map[string][]*subscription),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the session loop in a goroutine and returns
// immediately. The loop runs until Close is called or the retry
// attempts are exhausted.
func (c *Client) Connect() {
	go c.run()
}

// Close tears the session down. The give-up notice is not emitted for
// a deliberate close.
func (c *Client) Close() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.done)
	conn := c.conn
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Client) run() {
	attempts := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.setState(StateConnecting)
		attempts++
		conn, err := c.dialer.Dial(c.url)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempts).Msg("connect failed")
			if attempts >= c.maxRetries {
				c.giveUp()
				return
			}
			c.setState(StateReconnecting)
			if !c.sleep() {
				return
			}
			continue
		}

		attempts = 0
		c.attach(conn)
		c.readLoop(conn)

		c.mu.Lock()
		stopped := c.stopped
		c.conn = nil
		c.mu.Unlock()
		if stopped {
			return
		}

		c.logger.Info().Msg("connection lost, reconnecting")
		c.setState(StateReconnecting)
		if !c.sleep() {
			return
		}
	}
}

// attach installs a fresh connection: reset state, authenticate, and
// re-announce every active subscription so a reconnected session
// keeps receiving what its observers expect.
func (c *Client) attach(conn types.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnected)
	tracked := make([]string, 0, len(c.subscribers))
	for tn := range c.subscribers {
		tracked = append(tracked, tn)
	}
	c.mu.Unlock()

	c.logger.Info().Msg("connected")
	if c.token != "" {
		c.send(types.Message{Type: types.TypeAuth, Token: c.token})
	}
	for _, tn := range tracked {
		c.send(types.Message{Type: types.TypeSubscribe, TrackingNumber: tn})
	}
}

func (c *Client) readLoop(conn types.Conn) {
	for {
		var msg types.Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound message by its type discriminator.
// Unrecognized types are ignored, not fatal.
func (c *Client) dispatch(msg types.Message) {
	switch msg.Type {
	case types.TypeShipmentUpdate:
		c.mu.Lock()
		subs := append([]*subscription(nil), c.subscribers[msg.TrackingNumber]...)
		c.mu.Unlock()
		for _, sub := range subs {
			sub.fn(msg)
		}
	case types.TypePing:
		c.send(types.NewPong())
	case types.TypePong:
		// Heartbeat reply, nothing to do.
	case types.TypeAuth:
		if msg.Success != nil && *msg.Success {
			c.logger.Info().Msg("authenticated")
		} else {
			c.logger.Warn().Str("reason", msg.Message).Msg("authentication failed")
		}
	case types.TypeInfo:
		c.logger.Debug().Str("message", msg.Message).Msg("server info")
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("unhandled message type")
	}
}

// Subscribe registers a callback for shipment updates on a tracking
// number and tells the server about the interest. The returned
// function detaches the callback; the last departure sends an
// unsubscribe notice upstream.
func (c *Client) Subscribe(trackingNumber string, cb func(types.Message)) func() {
	sub := &subscription{fn: cb}

	c.mu.Lock()
	first := len(c.subscribers[trackingNumber]) == 0
	c.subscribers[trackingNumber] = append(c.subscribers[trackingNumber], sub)
	c.mu.Unlock()

	if first {
		c.send(types.Message{Type: types.TypeSubscribe, TrackingNumber: trackingNumber})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			subs := c.subscribers[trackingNumber]
			for i, candidate := range subs {
				if candidate == sub {
					subs = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			last := len(subs) == 0
			if last {
				delete(c.subscribers, trackingNumber)
			} else {
				c.subscribers[trackingNumber] = subs
			}
			c.mu.Unlock()

			if last {
				c.send(types.Message{Type: types.TypeUnsubscribe, TrackingNumber: trackingNumber})
			}
		})
	}
}

// send writes a message on the current connection, if any. Best
// effort; a failed write surfaces through the read loop shortly after.
func (c *Client) send(msg types.Message) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg) == nil
}

func (c *Client) giveUp() {
	c.setState(StateGivenUp)
	c.logger.Error().Int("attempts", c.maxRetries).Msg("reconnect attempts exhausted, live updates unavailable")
	if c.onGiveUp != nil {
		c.onGiveUp()
	}
}

func (c *Client) sleep() bool {
	select {
	case <-time.After(c.retryDelay):
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

func (c *Client) setStateLocked(s State) {
	c.state = s
}
