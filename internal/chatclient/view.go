package chatclient

import (
	"checkin/backend/internal/echo"
	"checkin/backend/internal/models"
	"errors"
	"fmt"
	"sync"
)

// ErrNotJoined is returned by Compose until the server has confirmed a room.
var ErrNotJoined = errors.New("chatclient: no room joined yet")

type EntryKind int

const (
	EntryMessage EntryKind = iota
	EntryStatus
)

// Entry is one thing the UI should print.
type Entry struct {
	Kind    EntryKind
	Message models.ChatMessage
	// Optimistic is set for a message rendered locally before the relay confirmed it.
	Optimistic bool

	// Key and Args describe a status line as a localization key.
	Key  string
	Args []any
}

// View is the client's rendering state for its current room. It renders
// sends optimistically and uses an echo.Suppressor so the relay's echo of
// the same message is not shown twice.
type View struct {
	mu       sync.Mutex
	room     string
	echo     *echo.Suppressor
	messages []models.ChatMessage
	out      func(Entry)
}

// NewView returns a view for a client posting as author. out receives every
// entry to render; it is called with the view locked and must not call back
// into the view.
func NewView(author string, mode echo.Mode, out func(Entry)) *View {
	if out == nil {
		out = func(Entry) {}
	}
	return &View{
		echo: echo.New(author, mode),
		out:  out,
	}
}

func (v *View) Room() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room
}

func (v *View) EchoState() echo.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.echo.State()
}

// Messages returns what is currently rendered for the room, oldest first.
func (v *View) Messages() []models.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.ChatMessage(nil), v.messages...)
}

// Compose renders a message optimistically and returns the payload to send.
// The payload always names the confirmed room so its echo can be matched.
func (v *View) Compose(body, attachment string) (models.SendMessagePayload, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.room == "" {
		return models.SendMessagePayload{}, ErrNotJoined
	}

	p := models.SendMessagePayload{
		Author:     v.echo.Author(),
		Body:       body,
		Room:       v.room,
		Attachment: attachment,
	}
	v.echo.Sent(p)

	msg := p.ToMessage()
	v.messages = append(v.messages, msg)
	v.out(Entry{Kind: EntryMessage, Message: msg, Optimistic: true})
	return p, nil
}

// Handle applies one server event to the view.
func (v *View) Handle(env models.Envelope) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch env.Type {
	case models.EventRoomJoined:
		var p models.RoomJoinedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		v.room = p.Room
		v.status("status.joined", p.Room)

	case models.EventHistory:
		var p models.HistoryPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		if p.Room != v.room {
			return nil
		}
		// A backfill replaces whatever was rendered for the room, except
		// optimistic sends that are still waiting for their echo.
		var optimistic []models.ChatMessage
		for _, msg := range v.messages {
			if msg.ID == 0 && msg.Room == v.room {
				optimistic = append(optimistic, msg)
			}
		}
		v.messages = append(append(v.messages[:0:0], p.Messages...), optimistic...)
		for _, msg := range p.Messages {
			v.out(Entry{Kind: EntryMessage, Message: msg})
		}
		if len(p.Messages) == 0 {
			v.status("status.history_empty")
		} else {
			v.status("status.history_loaded", len(p.Messages))
		}

	case models.EventHistoryFailed:
		var p models.HistoryFailedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		v.status("status.history_failed", p.Room, p.Reason)

	case models.EventMessageDelivered:
		var msg models.ChatMessage
		if err := env.Decode(&msg); err != nil {
			return err
		}
		if msg.Room != v.room {
			return nil
		}
		if v.echo.Receive(msg) {
			v.confirm(msg)
			return nil
		}
		v.messages = append(v.messages, msg)
		v.out(Entry{Kind: EntryMessage, Message: msg})

	case models.EventSendFailed:
		var p models.SendFailedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		v.status("status.send_failed", p.Reason, p.Message.Body)

	default:
		return fmt.Errorf("unknown event %q", env.Type)
	}
	return nil
}

// confirm swaps the optimistic copy of msg for the persisted one.
func (v *View) confirm(msg models.ChatMessage) {
	for i, m := range v.messages {
		if m.ID == 0 && m.Author == msg.Author && m.Body == msg.Body && m.Room == msg.Room && m.Attachment == msg.Attachment {
			v.messages[i] = msg
			return
		}
	}
}

func (v *View) status(key string, args ...any) {
	v.out(Entry{Kind: EntryStatus, Key: key, Args: args})
}
