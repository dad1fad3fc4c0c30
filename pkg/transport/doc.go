// Package transport implements the STOMP 1.2 session over WebSocket.
//
// The transport layer handles:
//   - Dialing the telemetry server with the v12.stomp subprotocol
//   - The CONNECT / CONNECTED handshake
//   - Topic subscriptions and MESSAGE routing by destination
//   - Heartbeat emission while connected
//   - Per-topic liveness and best-effort resubscription
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON reading payloads     │
//	├────────────────────────────────┤
//	│        STOMP 1.2 frames        │
//	├────────────────────────────────┤
//	│       WebSocket messages       │
//	├────────────────────────────────┤
//	│              TCP               │
//	└────────────────────────────────┘
//
// # Session Lifecycle
//
// A Client moves Idle → Connecting → Connected → Closed. A closed session
// is never reused; a new Connect opens a fresh one while the subscription
// table is carried over and re-sent on CONNECTED.
//
// Closes the client did not request (transport errors, peer close, Drop)
// are reported to the Listener exactly once per session through
// OnDisconnect. Disconnect is silent. Reconnection is the job of
// pkg/connection, not of this package.
//
// # Liveness
//
// HeartbeatMonitor sends an EOL every HeartbeatInterval. SubscriptionHealth
// checks every HealthInterval for topics that have been silent longer than
// StaleAfter and sends a fresh SUBSCRIBE for them without unsubscribing the
// old id first.
package transport
