package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Hub maintains the set of active clients and broadcasts messages to the clients.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	stop chan struct{}

	// Mutex for thread safety
	mutex sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// Buffered channel of outbound messages.
	send chan []byte

	// User ID for per-user notifications
	userID uint

	mu       sync.RWMutex
	channels map[string]bool
}

// Message is a channel event pushed to subscribers.
type Message struct {
	Channel string      `json:"channel,omitempty"`
	Event   string      `json:"event"`
	Data    interface{} `json:"data"`
}

// NotificationMessage represents a notification WebSocket message
type NotificationMessage struct {
	Type         string      `json:"type"`
	Notification interface{} `json:"notification"`
}

// clientCommand is what clients send: {"action":"subscribe","channel":"dashboard"}
type clientCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.WithField("user_id", client.userID).Info("websocket client connected")

		case client := <-h.unregister:
			h.remove(client)
			logrus.WithField("user_id", client.userID).Info("websocket client disconnected")

		case <-h.stop:
			return
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) newClient(userID uint) *Client {
	return &Client{
		hub:      h,
		send:     make(chan []byte, sendBuffer),
		userID:   userID,
		channels: map[string]bool{},
	}
}

// Subscribe adds the client to a named channel.
func (c *Client) Subscribe(channel string) {
	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()
}

func (c *Client) Unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

func (c *Client) Subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

// deliver sends data to every client matching keep. Clients whose buffer is
// full are dropped.
func (h *Hub) deliver(data []byte, keep func(*Client) bool) (sent int) {
	var dropped []*Client
	h.mutex.RLock()
	for client := range h.clients {
		if !keep(client) {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			dropped = append(dropped, client)
		}
	}
	h.mutex.RUnlock()

	for _, c := range dropped {
		h.remove(c)
	}
	if len(dropped) > 0 {
		logrus.WithField("dropped", len(dropped)).Warn("websocket clients dropped, send buffer full")
	}
	return sent
}

func marshal(message interface{}) ([]byte, bool) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithField("error", err.Error()).Error("marshal websocket message")
		return nil, false
	}
	return data, true
}

// BroadcastToUser sends a message to all connections for a specific user
func (h *Hub) BroadcastToUser(userID uint, message interface{}) {
	data, ok := marshal(message)
	if !ok {
		return
	}
	sent := h.deliver(data, func(c *Client) bool { return c.userID == userID })
	logrus.WithFields(logrus.Fields{"user_id": userID, "sent": sent, "bytes": len(data)}).Debug("websocket user broadcast")
}

// BroadcastChannel sends an event to every client subscribed to channel.
func (h *Hub) BroadcastChannel(channel, event string, data interface{}) {
	payload, ok := marshal(Message{Channel: channel, Event: event, Data: data})
	if !ok {
		return
	}
	sent := h.deliver(payload, func(c *Client) bool { return c.Subscribed(channel) })
	logrus.WithFields(logrus.Fields{"channel": channel, "event": event, "sent": sent}).Debug("websocket channel broadcast")
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message interface{}) {
	data, ok := marshal(message)
	if !ok {
		return
	}
	h.deliver(data, func(*Client) bool { return true })
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// handleCommand applies a client frame. Unknown frames are ignored.
func (h *Hub) handleCommand(client *Client, raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	channel := strings.TrimSpace(cmd.Channel)
	switch cmd.Action {
	case "subscribe":
		if channel != "" {
			client.Subscribe(channel)
		}
	case "unsubscribe":
		client.Unsubscribe(channel)
	case "ping":
		if data, ok := marshal(Message{Event: "pong"}); ok {
			h.deliver(data, func(c *Client) bool { return c == client })
		}
	}
}

// ServeFiberWS handles Fiber websocket connections
func (h *Hub) ServeFiberWS(c *fiberws.Conn, userID uint) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"user_id": userID, "panic": r}).Error("websocket handler panic")
		}
	}()

	client := h.newClient(userID)
	h.register <- client

	go h.fiberWritePump(client, c)
	// Run read pump inline to avoid passing the Fiber connection across goroutines
	h.fiberReadPump(client, c)
}

// fiberWritePump handles writing to Fiber websocket connections
func (h *Hub) fiberWritePump(client *Client, c *fiberws.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.WriteMessage(fiberws.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": client.userID, "error": err.Error()}).Warn("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// fiberReadPump handles reading from Fiber websocket connections
func (h *Hub) fiberReadPump(client *Client, c *fiberws.Conn) {
	defer func() {
		h.unregister <- client
	}()

	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseAbnormalClosure) {
				logrus.WithFields(logrus.Fields{"user_id": client.userID, "error": err.Error()}).Warn("websocket unexpected close")
			}
			return
		}
		h.handleCommand(client, raw)
	}
}
