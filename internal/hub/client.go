package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// MessageType is the type of a control message sent by a client.
type MessageType string

const (
	MessageTypeJoin  MessageType = "join"
	MessageTypeLeave MessageType = "leave"
	MessageTypePing  MessageType = "ping"
	MessageTypePong  MessageType = "pong"
)

// Message is a client control message. Room is a status topic or a resource id.
type Message struct {
	Type      MessageType `json:"type"`
	Room      string      `json:"room,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one websocket connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]bool
	logger logrus.FieldLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, logger logrus.FieldLogger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]bool),
		logger: logger.WithField("client_id", id),
	}
}

// ReadPump reads control messages until the connection fails, then
// unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("websocket read error")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithError(err).Debug("invalid client message")
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump writes queued events and keepalive pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).Debug("websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeJoin:
		if msg.Room != "" {
			c.hub.Join(c, msg.Room)
		}
	case MessageTypeLeave:
		if msg.Room != "" {
			c.hub.Leave(c, msg.Room)
		}
	case MessageTypePing:
		data, _ := json.Marshal(Message{Type: MessageTypePong, Timestamp: time.Now()})
		select {
		case c.send <- data:
		default:
		}
	}
}
