package log

import (
	"time"
)

// MaxCapturedBodySize bounds the frame body stored in an event.
const MaxCapturedBodySize = 4096

// Event represents a protocol capture event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the session (UUID, new per connect).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the server address.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Destination is the topic the event relates to, if any.
	Destination string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Control     *ControlEvent     `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the WebSocket layer.
	LayerTransport Layer = 0
	// LayerFrame is the STOMP frame layer.
	LayerFrame Layer = 1
	// LayerService is the monitoring service.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerFrame:
		return "FRAME"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a STOMP frame.
	CategoryMessage Category = 0
	// CategoryControl indicates a heartbeat or close.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one STOMP frame.
type FrameEvent struct {
	// Command is the STOMP command.
	Command string `cbor:"1,keyasint"`

	// Headers as sent or received.
	Headers map[string]string `cbor:"2,keyasint,omitempty"`

	// Size is the encoded frame size in bytes.
	Size int `cbor:"3,keyasint"`

	// Body may be truncated to MaxCapturedBodySize.
	Body string `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Body was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent, truncating the body if needed.
func NewFrameEvent(command string, headers map[string]string, body string, size int) *FrameEvent {
	fe := &FrameEvent{
		Command: command,
		Headers: headers,
		Size:    size,
		Body:    body,
	}
	if len(body) > MaxCapturedBodySize {
		fe.Body = body[:MaxCapturedBodySize]
		fe.Truncated = true
	}
	return fe
}

// StateChangeEvent captures connection and service lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the ReconnectController state.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the STOMP session state.
	StateEntitySession StateEntity = 1
	// StateEntityRoster is the sensor roster.
	StateEntityRoster StateEntity = 2
	// StateEntityVerdict is the site safety verdict.
	StateEntityVerdict StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityRoster:
		return "ROSTER"
	case StateEntityVerdict:
		return "VERDICT"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures heartbeats and closes.
type ControlEvent struct {
	// Type of control event.
	Type ControlType `cbor:"1,keyasint"`

	// CloseCode is the WebSocket close code for close events.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// Reason accompanies a close.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlType indicates the type of control event.
type ControlType uint8

const (
	// ControlHeartbeat is a STOMP heartbeat.
	ControlHeartbeat ControlType = 0
	// ControlClose is a WebSocket close.
	ControlClose ControlType = 1
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlHeartbeat:
		return "HEARTBEAT"
	case ControlClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
