package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Connection errors.
var (
	ErrConnectionClosed  = errors.New("connection manager closed")
	ErrFailedPermanently = errors.New("reconnect attempts exhausted")
	ErrReconnectPending  = errors.New("reconnect already scheduled")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates a backoff timer is pending.
	StateReconnecting

	// StateFailedPermanently indicates automatic reconnection gave up.
	StateFailedPermanently

	// StateClosed indicates the connection manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailedPermanently:
		return "FAILED_PERMANENTLY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ResyncFunc drops derived state, refetches the roster and opens a fresh
// session. Its outcome is reported back through NotifyConnected or
// NotifyConnectionLost.
type ResyncFunc func(ctx context.Context)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func()) Timer

// AfterFunc calls fn(d, f).
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer {
	return fn(d, f)
}

// systemScheduler schedules on the runtime timer.
type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Manager.
type Option func(*Manager)

// WithScheduler replaces the runtime timer used for backoff delays.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager tracks the session state and schedules resyncs with linear
// backoff after the session is lost.
type Manager struct {
	mu sync.Mutex

	// Current state
	state State

	// Backoff calculator
	backoff *Backoff

	// Resync function invoked on timer expiry and manual reconnect
	resync ResyncFunc

	scheduler Scheduler
	logger    *zap.Logger

	// Pending backoff timer and its generation. A timer whose generation
	// no longer matches has been superseded and must not fire the resync.
	timer      Timer
	generation uint64

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Callbacks
	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
	onFailed       func()
}

// NewManager creates a new connection manager.
func NewManager(cfg BackoffConfig, resync ResyncFunc, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		state:     StateDisconnected,
		backoff:   NewBackoffWithConfig(cfg),
		resync:    resync,
		scheduler: systemScheduler{},
		logger:    zap.NewNop(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Attempts returns the number of automatic attempts since the last
// successful connect.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// Pending reports whether a backoff timer is scheduled.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// NotifyConnecting records that a connect attempt has started.
func (m *Manager) NotifyConnecting() {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateFailedPermanently || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.emitStateChange(old, StateConnecting)
}

// NotifyConnected records a successful connect. Pending timers are
// cancelled and the attempt counter is reset.
func (m *Manager) NotifyConnected() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.backoff.Reset()
	old := m.state
	m.state = StateConnected
	m.mu.Unlock()

	if old != StateConnected {
		m.emitStateChange(old, StateConnected)
	}
}

// NotifyConnectionLost reports an unexpected drop, an error frame or a
// failed connect attempt. It schedules the next resync and returns its
// delay. A loss reported while a timer is already pending is coalesced
// into that timer and returns ErrReconnectPending. When the attempts are
// exhausted the manager moves to StateFailedPermanently, schedules nothing
// and returns ErrFailedPermanently.
func (m *Manager) NotifyConnectionLost(reason string) (time.Duration, error) {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return 0, ErrConnectionClosed
	case StateFailedPermanently:
		m.mu.Unlock()
		return 0, ErrFailedPermanently
	}
	if m.timer != nil {
		m.mu.Unlock()
		m.logger.Debug("connection loss coalesced into pending reconnect", zap.String("reason", reason))
		return 0, ErrReconnectPending
	}

	old := m.state
	delay, ok := m.backoff.Next()
	if !ok {
		m.state = StateFailedPermanently
		attempts := m.backoff.Attempts()
		onFailed := m.onFailed
		m.mu.Unlock()

		m.logger.Error("reconnect attempts exhausted",
			zap.String("reason", reason),
			zap.Int("attempts", attempts))
		m.emitStateChange(old, StateFailedPermanently)
		if onFailed != nil {
			onFailed()
		}
		return 0, ErrFailedPermanently
	}

	m.generation++
	gen := m.generation
	m.state = StateReconnecting
	attempt := m.backoff.Attempts()
	m.timer = m.scheduler.AfterFunc(delay, func() { m.fire(gen) })
	onReconnecting := m.onReconnecting
	m.mu.Unlock()

	m.logger.Warn("connection lost, reconnect scheduled",
		zap.String("reason", reason),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	if old != StateReconnecting {
		m.emitStateChange(old, StateReconnecting)
	}
	if onReconnecting != nil {
		onReconnecting(attempt, delay)
	}
	return delay, nil
}

// ManualReconnect cancels pending timers, clears the attempt counter and
// runs a resync immediately. It is accepted in every state except closed.
func (m *Manager) ManualReconnect() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	m.stopTimerLocked()
	m.backoff.Reset()
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Info("manual reconnect requested", zap.String("from", old.String()))
	if old != StateConnecting {
		m.emitStateChange(old, StateConnecting)
	}
	m.runResync()
	return nil
}

// Close cancels pending timers and shuts the manager down.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	old := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.emitStateChange(old, StateClosed)
	m.cancel()
}

// fire runs when a backoff timer expires.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.state = StateConnecting
	m.mu.Unlock()

	m.emitStateChange(StateReconnecting, StateConnecting)
	m.runResync()
}

func (m *Manager) runResync() {
	if m.resync != nil {
		m.resync(m.ctx)
	}
}

// stopTimerLocked cancels the pending timer. Caller must hold m.mu.
func (m *Manager) stopTimerLocked() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) emitStateChange(old, new State) {
	m.mu.Lock()
	fn := m.onStateChange
	m.mu.Unlock()
	if fn != nil {
		fn(old, new)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting sets a callback invoked when a reconnect is scheduled.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// OnFailed sets a callback invoked on the transition to
// StateFailedPermanently.
func (m *Manager) OnFailed(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed = fn
}
