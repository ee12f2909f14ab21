package chathub

import (
	"checkin/backend/internal/models"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// WebSocketClient реалізує інтерфейс chathub.Client поверх gorilla/websocket.
type WebSocketClient struct {
	ConnID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Envelope
}

// NewWebSocketClient wraps an upgraded connection with a fresh connection id.
func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService) *WebSocketClient {
	return &WebSocketClient{
		ConnID: uuid.New().String(),
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Envelope, sendBufferSize),
	}
}

func (c *WebSocketClient) GetConnID() string                      { return c.ConnID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Envelope { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	close(c.Send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: error reading from %s: %v", c.ConnID, err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("ws: error decoding JSON from client %s: %v", c.ConnID, err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch routes one client event to the hub. Malformed events are logged
// and skipped; the connection stays open.
func (c *WebSocketClient) dispatch(env models.Envelope) {
	switch env.Type {
	case models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := env.Decode(&p); err != nil {
			log.Printf("ws: bad join_room from %s: %v", c.ConnID, err)
			return
		}
		c.Hub.Join(c.ConnID, p.Room)

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := env.Decode(&p); err != nil {
			log.Printf("ws: bad send_message from %s: %v", c.ConnID, err)
			return
		}
		c.Hub.Submit(c.ConnID, p)

	default:
		log.Printf("ws: unknown event %q from %s", env.Type, c.ConnID)
	}
}

// writePump читає події з каналу Send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame so clients can decode each message on its own.
			if err := c.Conn.WriteJSON(env); err != nil {
				log.Printf("ws: error writing to %s: %v", c.ConnID, err)
				return
			}

		case <-ticker.C:
			// Надсилаємо Ping для підтримки з'єднання активним
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
