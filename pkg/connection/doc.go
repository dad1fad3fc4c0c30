// Package connection provides session lifecycle management for the
// telemetry channel.
//
// This package handles:
//   - Linear backoff for reconnection attempts
//   - A bounded number of automatic attempts
//   - Connection state tracking
//   - Manual recovery after the automatic path gives up
//
// # Reconnection Strategy
//
// When the session drops, the next attempt is scheduled after
// base_interval x attempts:
//
//  1. Attempt 1: 5 seconds
//  2. Attempt 2..5: 10s, 15s, 20s, 25s
//  3. A further failure moves the manager to FAILED_PERMANENTLY
//  4. Attempts reset to zero on a successful connect
//
// Each scheduled attempt runs a full resync: derived sensor state is
// dropped, the roster is fetched again and a fresh session is opened.
//
// # Manual Reconnect
//
// FAILED_PERMANENTLY is terminal for the automatic path only. An operator
// reconnect cancels pending timers, clears the attempt counter and starts
// a resync immediately regardless of backoff state.
package connection
