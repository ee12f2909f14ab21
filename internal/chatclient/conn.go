// Package chatclient is the client side of the realtime protocol: a
// websocket connection, the rendered room view with echo suppression, and
// attachment uploads.
package chatclient

import (
	"checkin/backend/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn is a client websocket connection to the relay.
type Conn struct {
	ws     *websocket.Conn
	events chan models.Envelope

	writeMu sync.Mutex
	errMu   sync.Mutex
	err     error
}

// WebSocketURL turns a server base URL (http, https, ws or wss) into the
// relay endpoint URL.
func WebSocketURL(base string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Dial connects to the relay at base and starts reading events.
func Dial(ctx context.Context, base string) (*Conn, error) {
	wsURL, err := WebSocketURL(base)
	if err != nil {
		return nil, err
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Conn{
		ws:     ws,
		events: make(chan models.Envelope, 64),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers server events in arrival order. It is closed when the
// connection ends; Err then reports why.
func (c *Conn) Events() <-chan models.Envelope {
	return c.events
}

func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) JoinRoom(room string) error {
	return c.write(models.EventJoinRoom, models.JoinRoomPayload{Room: room})
}

func (c *Conn) SendMessage(p models.SendMessagePayload) error {
	return c.write(models.EventSendMessage, p)
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) write(t models.EventType, payload any) error {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(env)
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Received raw: %s", data)
			continue
		}
		c.events <- env
	}
}
