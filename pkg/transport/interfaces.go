package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-oriented connection to the telemetry server.
// Implemented by *websocket.Conn.
type Conn interface {
	// ReadMessage blocks until the next message arrives.
	ReadMessage() (messageType int, p []byte, err error)

	// WriteMessage sends one message.
	WriteMessage(messageType int, data []byte) error

	// SetWriteDeadline bounds the next write.
	SetWriteDeadline(t time.Time) error

	// Close closes the underlying network connection.
	Close() error
}

// Dialer opens a Conn to address.
// Implemented by WebSocketDialer.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Listener receives session lifecycle events. Callbacks run on the
// client's read goroutine and must not block.
type Listener interface {
	// OnConnect is called after CONNECTED once the subscriptions are sent.
	OnConnect()

	// OnDisconnect is called once per session for a close the client did
	// not request.
	OnDisconnect(code int, reason string)

	// OnError is called for an inbound ERROR frame.
	OnError(err error)

	// OnMessage is called for every routed MESSAGE after its topic handler.
	OnMessage(topic string, body []byte)
}

// MessageHandler receives the body of a MESSAGE frame for one topic.
type MessageHandler func(topic string, body []byte)

// NopListener ignores all events.
type NopListener struct{}

func (NopListener) OnConnect()               {}
func (NopListener) OnDisconnect(int, string) {}
func (NopListener) OnError(error)            {}
func (NopListener) OnMessage(string, []byte) {}

// Compile-time interface satisfaction checks.
var (
	_ Conn     = (*websocket.Conn)(nil)
	_ Dialer   = (*WebSocketDialer)(nil)
	_ Listener = NopListener{}
)
