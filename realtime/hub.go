package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"jjm/metrics"
	"jjm/models"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HistoryFunc produces the snapshot sent to every new connection
type HistoryFunc func() interface{}

type outbound struct {
	topic string
	data  []byte
}

// Hub maintains the set of active clients and fans out messages to the ones
// subscribed to each message type.
type Hub struct {
	logger     *zap.Logger
	clients    map[*hubClient]bool
	broadcast  chan outbound
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	mu         sync.RWMutex
	history    HistoryFunc
}

// hubClient is a middleman between one websocket connection and the hub
type hubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		clients:    make(map[*hubClient]bool),
		done:       make(chan struct{}),
	}
}

// SetHistory installs the snapshot sent to clients when they connect
func (h *Hub) SetHistory(fn HistoryFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = fn
}

// Run serves register, unregister and broadcast requests until ctx is
// cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("Starting realtime hub")

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.RealtimeClients.Set(0)
			h.logger.Info("Realtime hub stopped")
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			history := h.history
			h.mu.Unlock()
			metrics.RealtimeClients.Set(float64(count))
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("clients", count))
			if history != nil {
				h.sendHistory(client, history())
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.RealtimeClients.Set(float64(count))
			h.logger.Info("WebSocket client unregistered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("clients", count))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribed(msg.topic) {
					continue
				}
				select {
				case client.send <- msg.data:
					metrics.RealtimeMessagesTotal.WithLabelValues(msg.topic, "out").Inc()
				default:
					h.logger.Warn("WebSocket client send buffer full, removing",
						zap.String("remote_addr", client.conn.RemoteAddr().String()))
					client.close()
					delete(h.clients, client)
				}
			}
			metrics.RealtimeClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendHistory(client *hubClient, payload interface{}) {
	env, err := newEnvelope(TypeHistory, payload)
	if err != nil {
		h.logger.Error("Error marshalling history", zap.Error(err))
		return
	}
	data, _ := json.Marshal(env)
	select {
	case client.send <- data:
	default:
		h.logger.Warn("Could not queue history for new client")
	}
}

// Publish sends a message of the given type to every subscribed client.
// It never blocks; when the broadcast queue is full the message is dropped.
func (h *Hub) Publish(msgType string, payload interface{}) {
	env, err := newEnvelope(msgType, payload)
	if err != nil {
		h.logger.Error("Error marshalling message for broadcast",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Error marshalling envelope", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- outbound{topic: msgType, data: data}:
	default:
		h.logger.Warn("Realtime broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// HandleReadings publishes one reading message per batch, followed by an
// anomaly message carrying the readings the detector flagged, if any.
func (h *Hub) HandleReadings(_ context.Context, events []models.ReadingEvent) {
	if len(events) == 0 {
		return
	}
	h.Publish(TypeReading, events)

	var anomalies []models.ReadingEvent
	for _, e := range events {
		if e.IsAnomaly {
			anomalies = append(anomalies, e)
		}
	}
	if len(anomalies) > 0 {
		h.Publish(TypeAnomaly, anomalies)
	}
}

func (h *Hub) Name() string { return "realtime" }

// Notify publishes a critical alert
func (h *Hub) Notify(_ context.Context, alert models.Alert) error {
	h.Publish(TypeAlert, alert)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicSubscribers counts clients explicitly subscribed to topic
func (h *Hub) TopicSubscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		client.mu.RLock()
		if client.topics[topic] {
			n++
		}
		client.mu.RUnlock()
	}
	return n
}

// ServeWS upgrades the request and registers the connection with the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "realtime hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := &hubClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer), topics: make(map[string]bool)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *hubClient) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic] || c.topics[Wildcard]
}

// close shuts the send channel once. Only the hub loop calls it.
func (c *hubClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// reply queues a message for this client only. It is dropped when the
// buffer is full or the hub has already closed the client.
func (c *hubClient) reply(env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump handles control messages from the connection
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.reply(Envelope{Type: TypeError, Error: "invalid message", Timestamp: time.Now()})
			continue
		}
		metrics.RealtimeMessagesTotal.WithLabelValues(env.Type, "in").Inc()

		switch env.Type {
		case TypeSubscribe:
			c.mu.Lock()
			for _, topic := range env.Topics {
				c.topics[topic] = true
			}
			c.mu.Unlock()
			c.hub.logger.Debug("WebSocket client subscribed", zap.Strings("topics", env.Topics))
		case TypeUnsubscribe:
			c.mu.Lock()
			for _, topic := range env.Topics {
				delete(c.topics, topic)
			}
			c.mu.Unlock()
		case TypePing:
			c.reply(Envelope{Type: TypePong, Timestamp: time.Now()})
		default:
			c.reply(Envelope{Type: TypeError, Error: "unknown message type " + env.Type, Timestamp: time.Now()})
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
