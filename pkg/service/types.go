package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaswatch/gaswatch-go/pkg/actuator"
	"github.com/gaswatch/gaswatch-go/pkg/alarm"
	"github.com/gaswatch/gaswatch-go/pkg/api"
	"github.com/gaswatch/gaswatch-go/pkg/connection"
	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
	"github.com/gaswatch/gaswatch-go/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownSensor  = errors.New("unknown sensor")
	ErrEmptyName      = errors.New("display name must not be empty")
)

// ServiceState represents the lifecycle state of a Monitor.
type ServiceState uint8

const (
	// StateIdle means the monitor has not been started.
	StateIdle ServiceState = iota

	// StateStarting means the monitor is loading preferences.
	StateStarting

	// StateRunning means the event loop is running.
	StateRunning

	// StateStopping means the monitor is shutting down.
	StateStopping

	// StateStopped means the monitor has been stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Monitor.
type Config struct {
	// Address is the WebSocket URL of the telemetry server.
	Address string

	// SensorHealthInterval is the period of the sensor health check.
	SensorHealthInterval time.Duration

	// SensorSilence is how long a sensor may stay silent before it counts
	// as stale.
	SensorSilence time.Duration

	// ResyncRatio is the stale share that forces a full resync.
	ResyncRatio float64

	// DropRatio is the stale share that drops the session.
	DropRatio float64

	// ResyncDelay is the pause before a health-triggered resync.
	ResyncDelay time.Duration

	// RosterInterval is the period of the roster refresh.
	RosterInterval time.Duration

	// FanInterval is the period of the fan poller (0 disables it).
	FanInterval time.Duration

	// ConnectTimeout bounds the wait for CONNECTED after CONNECT is sent.
	ConnectTimeout time.Duration

	// FetchTimeout bounds one roster or fan fetch.
	FetchTimeout time.Duration

	// PersistTimeout bounds one preference save.
	PersistTimeout time.Duration

	// Backoff configures the reconnect backoff.
	Backoff connection.BackoffConfig
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		SensorHealthInterval: 30 * time.Second,
		SensorSilence:        60 * time.Second,
		ResyncRatio:          0.7,
		DropRatio:            0.5,
		ResyncDelay:          3 * time.Second,
		RosterInterval:       60 * time.Second,
		FanInterval:          5 * time.Second,
		ConnectTimeout:       10 * time.Second,
		FetchTimeout:         15 * time.Second,
		PersistTimeout:       5 * time.Second,
		Backoff: connection.BackoffConfig{
			BaseInterval: connection.DefaultBaseInterval,
			MaxAttempts:  connection.DefaultMaxAttempts,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Address == "":
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	case c.SensorHealthInterval <= 0, c.SensorSilence <= 0, c.RosterInterval <= 0:
		return fmt.Errorf("%w: health and roster intervals must be positive", ErrInvalidConfig)
	case c.ResyncRatio <= 0 || c.ResyncRatio > 1, c.DropRatio <= 0 || c.DropRatio > 1:
		return fmt.Errorf("%w: ratios must be in (0,1]", ErrInvalidConfig)
	case c.DropRatio > c.ResyncRatio:
		return fmt.Errorf("%w: drop ratio above resync ratio", ErrInvalidConfig)
	case c.FanInterval < 0, c.ResyncDelay < 0:
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}
	return nil
}

// EventType identifies the type of monitor event.
type EventType uint8

const (
	// EventConnected is emitted when a STOMP session is established.
	EventConnected EventType = iota

	// EventDisconnected is emitted when the session is lost.
	EventDisconnected

	// EventReconnecting is emitted when a resync is scheduled.
	EventReconnecting

	// EventFailed is emitted when automatic reconnection gives up.
	EventFailed

	// EventRosterChanged is emitted when the roster is loaded or changes.
	EventRosterChanged

	// EventVerdictChanged is emitted when the site verdict changes.
	EventVerdictChanged

	// EventLampChanged is emitted when the lamp or its switches change.
	EventLampChanged

	// EventServerAlarm is emitted for an advisory carried in a reading.
	EventServerAlarm

	// EventFanChanged is emitted when a fan switches on or off.
	EventFanChanged
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventReconnecting:
		return "RECONNECTING"
	case EventFailed:
		return "FAILED"
	case EventRosterChanged:
		return "ROSTER_CHANGED"
	case EventVerdictChanged:
		return "VERDICT_CHANGED"
	case EventLampChanged:
		return "LAMP_CHANGED"
	case EventServerAlarm:
		return "SERVER_ALARM"
	case EventFanChanged:
		return "FAN_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Event is a monitor event.
type Event struct {
	Type EventType

	// SensorID is set for sensor events.
	SensorID string

	// Message carries the disconnect reason or the server advisory.
	Message string

	// Level grades the advisory of EventServerAlarm.
	Level gas.Status

	// Attempt and Delay are set for EventReconnecting.
	Attempt int
	Delay   time.Duration

	// Verdict is set for EventVerdictChanged.
	Verdict alarm.Verdict

	// Lamp is set for EventLampChanged.
	Lamp actuator.State

	// Port and On are set for EventFanChanged.
	Port string
	On   bool

	// Sensors is the roster size for EventRosterChanged.
	Sensors int
}

// EventHandler receives monitor events. Handlers run on the event loop and
// must not block or call back into the Monitor.
type EventHandler func(Event)

// RosterSource fetches the sensor roster.
// Implemented by *api.Client.
type RosterSource interface {
	FetchRoster(ctx context.Context) ([]sensor.Descriptor, error)
}

// FanSource fetches fan status.
// Implemented by *api.Client.
type FanSource interface {
	FetchFanPorts(ctx context.Context) ([]string, error)
	FetchFanStatus(ctx context.Context, ports []string) ([]api.FanStatus, error)
}

// Transport is the STOMP session used by the monitor.
// Implemented by *transport.Client.
type Transport interface {
	Connect(ctx context.Context, address string) error
	Disconnect() error
	Drop(reason string)
	IsConnected() bool
	State() transport.State
	Subscribe(topic string, handler transport.MessageHandler) error
	Unsubscribe(topic string) error
	UnsubscribeAll() error
}

// SensorStatus is the snapshot of one sensor.
type SensorStatus struct {
	Sensor     sensor.Descriptor
	Reading    sensor.Reading
	HasReading bool
	Statuses   map[gas.Type]gas.Status
	Alarm      string

	// Advisory is the server's alarm text of the latest reading and
	// AdvisoryLevel its grade.
	Advisory      string
	AdvisoryLevel gas.Status
}

// Status is a snapshot of the monitor.
type Status struct {
	State      ServiceState
	Session    transport.State
	Connection connection.State
	Attempts   int
	Sensors    []SensorStatus
	Verdict    alarm.Verdict
	Lamp       actuator.State
	Fans       map[string]bool
}

// Compile-time interface satisfaction checks.
var (
	_ RosterSource = (*api.Client)(nil)
	_ FanSource    = (*api.Client)(nil)
	_ Transport    = (*transport.Client)(nil)
)
