package chathub_test

import (
	"checkin/backend/internal/models"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type MockClient struct {
	connID string
	send   chan models.Envelope
	closed atomic.Bool
}

func newMockClient(connID string) *MockClient {
	return newMockClientWithBuffer(connID, 64)
}

func newMockClientWithBuffer(connID string, size int) *MockClient {
	return &MockClient{
		connID: connID,
		send:   make(chan models.Envelope, size),
	}
}

func (c *MockClient) GetConnID() string                      { return c.connID }
func (c *MockClient) GetSendChannel() chan<- models.Envelope { return c.send }

func (c *MockClient) Run() {
	// Not needed for testing
}

// Close mirrors WebSocketClient: a second call panics on the closed channel.
func (c *MockClient) Close() {
	c.closed.Store(true)
	close(c.send)
}

func (c *MockClient) IsClosed() bool { return c.closed.Load() }

// next returns the client's next outbound event or fails the test.
func next(t *testing.T, c *MockClient) models.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.send:
		require.True(t, ok, "client %s was closed", c.connID)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s: no event received", c.connID)
	}
	return models.Envelope{}
}

// expect reads the next event, checks its type and decodes its payload.
func expect[T any](t *testing.T, c *MockClient, typ models.EventType) T {
	t.Helper()
	env := next(t, c)
	require.Equal(t, typ, env.Type, "client %s: unexpected event %s", c.connID, env.Payload)
	var p T
	require.NoError(t, env.Decode(&p))
	return p
}

func assertNoEvent(t *testing.T, c *MockClient, wait time.Duration) {
	t.Helper()
	select {
	case env, ok := <-c.send:
		if ok {
			t.Fatalf("client %s: unexpected %s event: %s", c.connID, env.Type, env.Payload)
		}
	case <-time.After(wait):
	}
}
