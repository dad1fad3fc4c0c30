// Package log provides structured protocol capture for the telemetry
// channel.
//
// This package defines the Logger interface and Event types for recording
// every STOMP frame, heartbeat, connection state change and decode failure
// seen on the session. It is separate from operational logging (zap):
// protocol capture is a complete machine-readable trace for debugging and
// offline analysis.
//
// # Basic Usage
//
//	// For development: mirror events onto the operational logger
//	cfg.ProtocolLogger = log.NewZapLogger(logger)
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/gaswatch/session.glog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(zapSink, fileSink)
//
// # Event Types
//
//   - Transport: WebSocket open/close and raw payload sizes
//   - Frame: decoded STOMP frames (FrameEvent)
//   - Service: roster, resync and verdict state changes
//
// Heartbeats and closes are control events; errors have a dedicated type.
//
// # File Format
//
// Log files use CBOR encoding with integer keys (.glog extension). The
// gaswatch-log tool provides viewing, filtering, statistics and export.
package log
