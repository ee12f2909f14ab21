package chathub

import "checkin/backend/internal/models"

// Client is the interface for one realtime connection. It abstracts the
// transport so the hub can manage WebSocket clients and test doubles uniformly.
type Client interface {
	// GetConnID returns the identifier assigned to this connection when it was accepted.
	GetConnID() string

	// GetSendChannel returns the channel the hub writes outbound events to.
	// The hub never blocks on it: a full channel marks a slow consumer.
	GetSendChannel() chan<- models.Envelope

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the outbound channel. The hub calls it exactly once, when
	// the client is removed.
	Close()
}
