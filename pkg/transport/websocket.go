package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gaswatch/gaswatch-go/pkg/stomp"
)

// DefaultHandshakeTimeout bounds the WebSocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// SensorPath is the WebSocket endpoint of the telemetry server.
const SensorPath = "/ws/sensor"

// WebSocketDialer dials the telemetry server offering the STOMP 1.2
// subprotocol.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the opening handshake (default 10s).
	HandshakeTimeout time.Duration

	// Header is sent with the upgrade request.
	Header http.Header
}

// NewWebSocketDialer creates a dialer with default settings.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: DefaultHandshakeTimeout}
}

// Dial opens a WebSocket to address (ws:// or wss:// URL).
func (d *WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = DefaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     []string{stomp.Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, address, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", address, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return conn, nil
}

// SensorURL builds the telemetry endpoint URL for host and port.
func SensorURL(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + SensorPath
}
