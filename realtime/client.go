package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrReconnectFailed is returned by Run once every reconnect attempt failed
var ErrReconnectFailed = eris.New("realtime: reconnect attempts exhausted")

// Handler receives one message. A panicking handler is recovered and logged.
type Handler func(Envelope)

type ClientOptions struct {
	URL               string
	ReconnectInterval time.Duration // multiplied by the attempt number
	MaxReconnectDelay time.Duration
	MaxAttempts       int
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
}

// ClientStatus is a point-in-time view of the client
type ClientStatus struct {
	Connected   bool   `json:"connected"`
	URL         string `json:"url"`
	Attempts    int    `json:"attempts"`
	Subscribers int    `json:"subscribers"`
}

type subscription struct {
	id      uint64
	handler Handler
}

// Client keeps a websocket connection to the hub open, reconnecting with a
// growing delay, and routes incoming messages to per-type handlers. Messages
// sent while disconnected are queued and flushed on the next connect.
type Client struct {
	opts   ClientOptions
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	attempts int
	queue    []Envelope
	handlers map[string][]subscription
	nextID   uint64

	writeMu sync.Mutex
}

func NewClient(opts ClientOptions, logger *zap.Logger) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:     opts,
		logger:   logger,
		handlers: make(map[string][]subscription),
	}
}

// reconnectDelay is min(interval * attempt, max)
func (c *Client) reconnectDelay(attempt int) time.Duration {
	delay := c.opts.ReconnectInterval * time.Duration(attempt)
	if delay > c.opts.MaxReconnectDelay {
		return c.opts.MaxReconnectDelay
	}
	return delay
}

// Run connects and keeps reconnecting until ctx is cancelled (returns nil)
// or MaxAttempts consecutive reconnects failed (returns ErrReconnectFailed).
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("WebSocket connect failed", zap.String("url", c.opts.URL), zap.Error(err))
			c.emit(Envelope{Type: TypeError, Error: err.Error(), Timestamp: time.Now()})
		} else {
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
		}

		c.mu.Lock()
		if c.attempts >= c.opts.MaxAttempts {
			c.mu.Unlock()
			c.logger.Error("WebSocket reconnect attempts exhausted", zap.Int("attempts", c.opts.MaxAttempts))
			c.emit(Envelope{Type: TypeConnection, Status: StatusFailed, Timestamp: time.Now()})
			return ErrReconnectFailed
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		delay := c.reconnectDelay(attempt)
		c.logger.Info("WebSocket reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.opts.MaxAttempts),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// serve owns one live connection until it drops or ctx ends
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	pending := c.queue
	c.queue = nil
	topics := c.serverTopicsLocked()
	c.mu.Unlock()

	c.logger.Info("WebSocket connected", zap.String("url", c.opts.URL))
	c.emit(Envelope{Type: TypeConnection, Status: StatusConnected, Timestamp: time.Now()})

	if len(topics) > 0 {
		c.Send(Envelope{Type: TypeSubscribe, Topics: topics})
	}
	for _, env := range pending {
		c.Send(env)
	}

	done := make(chan struct{})
	go c.heartbeat(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Failed to parse WebSocket message", zap.Error(err))
			c.emit(Envelope{Type: TypeError, Error: "invalid message", Timestamp: time.Now()})
			continue
		}
		c.emit(env)
	}

	close(done)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()

	c.logger.Info("WebSocket disconnected", zap.String("url", c.opts.URL))
	c.emit(Envelope{Type: TypeConnection, Status: StatusDisconnected, Timestamp: time.Now()})
}

// heartbeat pings the server while the connection is up. It also closes the
// connection when ctx ends so the read loop returns.
func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			c.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.writeMu.Unlock()
			conn.Close()
			return
		case <-ticker.C:
			c.Send(Envelope{Type: TypePing})
		}
	}
}

// Send writes a message now, or queues it when not connected. It reports
// whether the message went out immediately.
func (c *Client) Send(env Envelope) bool {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.queue = append(c.queue, env)
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env); err != nil {
		c.logger.Warn("WebSocket send failed", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

// Subscribe registers handler for a message type ("*" for all) and returns
// a function that removes it. Server-side types are also subscribed on the
// hub; connection and error are local events.
func (c *Client) Subscribe(msgType string, handler Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	first := len(c.handlers[msgType]) == 0
	c.handlers[msgType] = append(c.handlers[msgType], subscription{id: id, handler: handler})
	c.mu.Unlock()

	if first && !localOnly(msgType) {
		c.Send(Envelope{Type: TypeSubscribe, Topics: []string{msgType}})
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(msgType, id) })
	}
}

func (c *Client) unsubscribe(msgType string, id uint64) {
	c.mu.Lock()
	subs := c.handlers[msgType]
	for i, sub := range subs {
		if sub.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	last := len(subs) == 0
	if last {
		delete(c.handlers, msgType)
	} else {
		c.handlers[msgType] = subs
	}
	c.mu.Unlock()

	if last && !localOnly(msgType) {
		c.Send(Envelope{Type: TypeUnsubscribe, Topics: []string{msgType}})
	}
}

func (c *Client) serverTopicsLocked() []string {
	var topics []string
	for msgType := range c.handlers {
		if !localOnly(msgType) {
			topics = append(topics, msgType)
		}
	}
	return topics
}

// emit calls the handlers for env.Type followed by the wildcard handlers
func (c *Client) emit(env Envelope) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.handlers[env.Type]...)
	if env.Type != Wildcard {
		subs = append(subs, c.handlers[Wildcard]...)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		c.call(sub.handler, env)
	}
}

func (c *Client) call(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("WebSocket handler panicked",
				zap.String("type", env.Type),
				zap.Any("panic", r))
		}
	}()
	h(env)
}

func (c *Client) Status() ClientStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientStatus{
		Connected:   c.conn != nil,
		URL:         c.opts.URL,
		Attempts:    c.attempts,
		Subscribers: len(c.handlers),
	}
}
