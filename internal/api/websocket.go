package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/logging"
	"trade-journal/internal/poll"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the server only listens locally
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// wsCommand is sent by a tab to join or leave a polling topic
type wsCommand struct {
	Action string `json:"action"` // subscribe, unsubscribe
	Topic  string `json:"topic"`
}

// UserWSClient is one connected browser tab
type UserWSClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *UserWSHub
	userID string

	mu     sync.Mutex
	closed bool
	subs   map[string]string // topic -> poll subscription id
	logger *logging.Logger
}

// UserWSHub tracks connected tabs per user
type UserWSHub struct {
	clients     map[*UserWSClient]bool
	userClients map[string]map[*UserWSClient]bool
	broadcast   chan []byte
	userCast    chan userMessage
	register    chan *UserWSClient
	unregister  chan *UserWSClient
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	logger      *logging.Logger
}

type userMessage struct {
	userID string
	data   []byte
}

func NewUserWSHub() *UserWSHub {
	return &UserWSHub{
		clients:     make(map[*UserWSClient]bool),
		userClients: make(map[string]map[*UserWSClient]bool),
		broadcast:   make(chan []byte, 256),
		userCast:    make(chan userMessage, 256),
		register:    make(chan *UserWSClient),
		unregister:  make(chan *UserWSClient),
		done:        make(chan struct{}),
		logger:      logging.WithComponent("websocket"),
	}
}

// Run serves register, unregister and broadcast requests until Stop
func (h *UserWSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.userID != "" {
				if h.userClients[client.userID] == nil {
					h.userClients[client.userID] = make(map[*UserWSClient]bool)
				}
				h.userClients[client.userID][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.deliver(message) {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case userMsg := <-h.userCast:
			h.mu.Lock()
			for client := range h.userClients[userMsg.userID] {
				if !client.deliver(userMsg.data) {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop disconnects every client and ends Run
func (h *UserWSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *UserWSHub) removeLocked(client *UserWSClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if userClients, ok := h.userClients[client.userID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	client.close()
}

// BroadcastToUser sends an event to a specific user's connections
func (h *UserWSHub) BroadcastToUser(userID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal user event")
		return
	}

	select {
	case h.userCast <- userMessage{userID: userID, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("User broadcast channel full, dropping message", "user_id", userID)
	}
}

// BroadcastToAll sends an event to all connected clients
func (h *UserWSHub) BroadcastToAll(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal event")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", string(event.Type))
	}
}

// GetUserClientCount returns the number of connected clients for a user
func (h *UserWSHub) GetUserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// GetTotalClientCount returns the total number of connected clients
func (h *UserWSHub) GetTotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver queues data without blocking; false means the client is gone or
// too slow and should be dropped
func (c *UserWSClient) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
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

func (c *UserWSClient) sendEvent(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal event")
		return
	}
	if !c.deliver(data) {
		c.logger.Debug("Dropping message for closed or slow client", "type", string(event.Type))
	}
}

func (c *UserWSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *UserWSClient) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump reads topic commands until the connection drops
func (c *UserWSClient) readPump(s *Server) {
	defer func() {
		s.dropSubscriptions(c)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendEvent(events.Event{
				Type: events.EventError,
				Data: map[string]interface{}{"message": "invalid command"},
			})
			continue
		}
		s.handleCommand(c, cmd)
	}
}

func (s *Server) handleCommand(c *UserWSClient, cmd wsCommand) {
	switch cmd.Action {
	case "subscribe":
		if err := s.subscribeClient(c, cmd.Topic); err != nil {
			c.sendEvent(events.Event{
				Type: events.EventError,
				Data: map[string]interface{}{"topic": cmd.Topic, "message": err.Error()},
			})
		}
	case "unsubscribe":
		s.unsubscribeClient(c, cmd.Topic)
	default:
		c.sendEvent(events.Event{
			Type: events.EventError,
			Data: map[string]interface{}{"message": "unknown action " + cmd.Action},
		})
	}
}

// subscribeClient joins the shared poll of topic. Subscribing twice to the
// same topic keeps a single subscription.
func (s *Server) subscribeClient(c *UserWSClient, name string) error {
	topic, err := s.resolveTopic(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	_, exists := c.subs[topic.Name]
	c.mu.Unlock()
	if exists {
		return nil
	}

	id, err := s.svc.Polls.Subscribe(topic, func(u poll.Update) {
		c.sendEvent(events.Event{
			Type:      events.EventTopicUpdate,
			Timestamp: u.At,
			Data: map[string]interface{}{
				"topic":   u.Topic,
				"seq":     u.Seq,
				"payload": u.Value,
			},
		})
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[topic.Name] = id
	c.mu.Unlock()
	c.logger.Debug("Subscribed to topic", "topic", topic.Name)
	return nil
}

func (s *Server) unsubscribeClient(c *UserWSClient, name string) {
	topic, err := s.resolveTopic(name)
	if err != nil {
		return
	}
	c.mu.Lock()
	id, ok := c.subs[topic.Name]
	delete(c.subs, topic.Name)
	c.mu.Unlock()
	if ok {
		s.svc.Polls.Unsubscribe(topic.Name, id)
	}
}

func (s *Server) dropSubscriptions(c *UserWSClient) {
	c.mu.Lock()
	subs := c.subs
	c.subs = map[string]string{}
	c.mu.Unlock()

	for topic, id := range subs {
		s.svc.Polls.Unsubscribe(topic, id)
	}
}

// handleUserWebSocket upgrades the request for the signed-in user
func (s *Server) handleUserWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	userID := s.getUserID(c)
	clientID := uuid.New().String()
	client := &UserWSClient{
		id:     clientID,
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    s.wsHub,
		userID: userID,
		subs:   make(map[string]string),
		logger: logging.WebSocketContext(clientID, userID),
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}
	client.logger.Info("WebSocket client connected")

	go client.writePump()
	go client.readPump(s)
}

// forwardEvents relays bus events to websocket clients. Events carrying a
// user id only reach that user's tabs.
func (s *Server) forwardEvents() {
	if s.svc.EventBus == nil {
		return
	}
	s.svc.EventBus.SubscribeAll(func(e events.Event) {
		if e.Type == events.EventTopicUpdate {
			return
		}
		if e.UserID != "" {
			s.wsHub.BroadcastToUser(e.UserID, e)
			return
		}
		s.wsHub.BroadcastToAll(e)
	})
}
