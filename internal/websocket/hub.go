package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"videowall/internal/metrics"
	"videowall/pkg/logging"

	"github.com/gorilla/websocket"
)

// Channels a client can subscribe to. "all" is a wildcard that matches
// every channel.
var validChannels = map[string]bool{
	"clients": true,
	"groups":  true,
	"streams": true,
	"system":  true,
	"all":     true,
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
}

// Client represents a WebSocket client connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels []string // Subscribed channels (clients, groups, streams, system)
	logger   logging.Logger
}

// Message represents a real-time message sent to clients
type Message struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// SubscriptionMessage represents a subscription request from client
type SubscriptionMessage struct {
	Action   string   `json:"action"`   // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // ["clients", "groups", "streams", "system"]
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub. Metrics may be nil.
func NewHub(logger logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    m,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.gaugeConnections()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.gaugeConnections()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast message")
		return
	}

	var dead []*Client

	h.mutex.RLock()
	for client := range h.clients {
		if !subscribed(client.channels, msg.Channel) {
			continue
		}
		select {
		case client.send <- message:
			if h.metrics != nil && h.metrics.HubMessages != nil {
				h.metrics.HubMessages.WithLabelValues(msg.Channel, "out").Inc()
			}
		default:
			// Slow consumer, drop the connection rather than the hub.
			dead = append(dead, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range dead {
		h.unregisterClient(client)
	}
}

func subscribed(channels []string, channel string) bool {
	for _, c := range channels {
		if c == channel || c == "all" {
			return true
		}
	}
	return false
}

// subscribe adds the valid channels from the request to the client's
// subscriptions and returns the resulting list.
func (h *Hub) subscribe(client *Client, channels []string) []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, channel := range channels {
		if !validChannels[channel] {
			h.logger.WithField("channel", channel).Warn("Ignoring subscription to unknown channel")
			continue
		}
		exists := false
		for _, existing := range client.channels {
			if existing == channel {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		client.channels = append(client.channels, channel)
	}
	return append([]string(nil), client.channels...)
}

// unsubscribe removes channels from the client's subscriptions and returns
// the resulting list.
func (h *Hub) unsubscribe(client *Client, channels []string) []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, channel := range channels {
		for i, existing := range client.channels {
			if existing == channel {
				client.channels = append(client.channels[:i], client.channels[i+1:]...)
				break
			}
		}
	}
	return append([]string(nil), client.channels...)
}

// unregisterClient safely unregisters a client
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		client.conn.Close()
	}
	h.mutex.Unlock()
	h.gaugeConnections()
}

// PublishEvent queues an event for broadcast to all subscribed clients. It
// never blocks: the registry calls it while holding its locks, so when the
// broadcast buffer is full the event is dropped with a warning instead.
func (h *Hub) PublishEvent(eventType, channel string, data map[string]interface{}) {
	message := Message{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.WithFields(logging.Fields{
			"event_type": eventType,
			"channel":    channel,
		}).Warn("Broadcast channel full, dropping message")
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	channelStats := make(map[string]int)
	for client := range h.clients {
		for _, channel := range client.channels {
			channelStats[channel]++
		}
	}

	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"channel_subscriptions": channelStats,
	}
}

func (h *Hub) gaugeConnections() {
	if h.metrics == nil || h.metrics.HubConnections == nil {
		return
	}
	h.mutex.RLock()
	total := len(h.clients)
	h.mutex.RUnlock()
	h.metrics.HubConnections.WithLabelValues("all").Set(float64(total))
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: []string{}, // No subscriptions initially
		logger:   h.logger,
	}

	client.hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		if c.hub.metrics != nil && c.hub.metrics.HubMessages != nil {
			c.hub.metrics.HubMessages.WithLabelValues("control", "in").Inc()
		}

		// Handle subscription messages
		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleSubscription processes subscription/unsubscription requests
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		channels := c.hub.subscribe(c, msg.Channels)
		c.logger.WithFields(logging.Fields{
			"channels": channels,
		}).Info("Client subscribed to channels")

		c.sendMessage(map[string]interface{}{
			"type":     "subscription_confirmed",
			"channels": channels,
		})

	case "unsubscribe":
		channels := c.hub.unsubscribe(c, msg.Channels)
		c.logger.WithFields(logging.Fields{
			"unsubscribed": msg.Channels,
			"remaining":    channels,
		}).Info("Client unsubscribed from channels")

		c.sendMessage(map[string]interface{}{
			"type":     "unsubscription_confirmed",
			"channels": channels,
		})

	default:
		c.logger.WithField("action", msg.Action).Warn("Unknown subscription action")
	}
}

// sendMessage sends a message to the client
func (c *Client) sendMessage(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}

	select {
	case c.send <- message:
	default:
		// Channel full, disconnect client
		close(c.send)
	}
}
