// Package echo keeps a client from rendering its own message twice: once
// optimistically when it is sent, and again when the relay echoes it back.
//
// A Suppressor is not safe for concurrent use; it belongs to one client's
// UI loop.
package echo

import (
	"checkin/backend/internal/models"
	"fmt"
	"strings"
)

type State int

const (
	Idle State = iota
	AwaitingEcho
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingEcho:
		return "awaiting_echo"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode selects how many optimistic sends are tracked at once.
type Mode string

const (
	// ModeSingle tracks only the latest send. Sending twice before the first
	// echo arrives makes the first echo render a second time.
	ModeSingle Mode = "single"
	// ModeQueue tracks every outstanding send; each echo consumes the oldest
	// equal one.
	ModeQueue Mode = "queue"
)

// ParseMode accepts "single", "queue" or an empty string (single).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeQueue:
		return ModeQueue, nil
	default:
		return "", fmt.Errorf("unknown echo mode %q (want single or queue)", s)
	}
}

// sent is the part of a message known before the server assigns an id.
type sent struct {
	body       string
	room       string
	attachment string
}

type Suppressor struct {
	author  string
	mode    Mode
	pending []sent
}

// New returns an idle Suppressor for a client posting as author.
func New(author string, mode Mode) *Suppressor {
	if mode != ModeQueue {
		mode = ModeSingle
	}
	return &Suppressor{author: author, mode: mode}
}

func (s *Suppressor) Author() string { return s.author }

func (s *Suppressor) Mode() Mode { return s.mode }

func (s *Suppressor) State() State {
	if len(s.pending) == 0 {
		return Idle
	}
	return AwaitingEcho
}

// Pending reports how many sends are still waiting for their echo.
func (s *Suppressor) Pending() int { return len(s.pending) }

// Sent records an optimistically rendered message.
func (s *Suppressor) Sent(msg models.SendMessagePayload) {
	p := sent{body: msg.Body, room: msg.Room, attachment: msg.Attachment}
	if s.mode == ModeSingle {
		s.pending = append(s.pending[:0], p)
		return
	}
	s.pending = append(s.pending, p)
}

// Receive reports whether a delivered message is the echo of a pending send
// and must not be rendered. A match consumes the pending send; anything else
// leaves the pending state untouched.
func (s *Suppressor) Receive(msg models.ChatMessage) bool {
	if msg.Author != s.author {
		return false
	}
	for i, p := range s.pending {
		if p.body == msg.Body && p.room == msg.Room && p.attachment == msg.Attachment {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Reset drops every pending send, e.g. after the connection is replaced.
func (s *Suppressor) Reset() {
	s.pending = s.pending[:0]
}
