// Package actuator drives the site warning lamp from the alarm verdict.
//
// The Bridge owns the lamp state machine. Physical calls are queued to a
// single worker goroutine so they never block the caller and always reach
// the device in the order they were decided.
package actuator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/alarm"
	"github.com/gaswatch/gaswatch-go/pkg/metrics"
)

// DefaultCallTimeout bounds one actuator call.
const DefaultCallTimeout = 10 * time.Second

// Actuator switches the physical lamp.
type Actuator interface {
	Switch(ctx context.Context, on bool) error
}

// State is a snapshot of the lamp state machine.
type State struct {
	LampOn           bool
	MasterEnabled    bool
	ManuallyDisabled bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics records lamp state and call outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithCallTimeout bounds each actuator call.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.callTimeout = d
		}
	}
}

// Bridge maps verdicts and operator commands onto lamp switch calls.
type Bridge struct {
	act         Actuator
	logger      *zap.Logger
	metrics     *metrics.Metrics
	callTimeout time.Duration

	mu    sync.Mutex
	state State

	onMasterChange func(enabled bool)

	qmu     sync.Mutex
	queue   []bool
	wake    chan struct{}
	closing bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge creates a bridge and starts its worker. masterEnabled is the
// persisted master switch.
func NewBridge(act Actuator, masterEnabled bool, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		act:         act,
		logger:      zap.NewNop(),
		callTimeout: DefaultCallTimeout,
		state:       State{MasterEnabled: masterEnabled},
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.worker()
	return b
}

// OnMasterChange registers a callback for master switch changes. It runs on
// the caller's goroutine.
func (b *Bridge) OnMasterChange(fn func(enabled bool)) {
	b.mu.Lock()
	b.onMasterChange = fn
	b.mu.Unlock()
}

// State returns the current lamp state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ApplyVerdict turns the lamp on for a dangerous verdict and off for any
// other verdict, warnings included.
func (b *Bridge) ApplyVerdict(v alarm.Verdict) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case v.Dangerous:
		if b.state.LampOn {
			return
		}
		if !b.state.MasterEnabled {
			b.logger.Warn("danger detected but alarm master switch is off",
				zap.Strings("problems", v.Problems))
			return
		}
		if b.state.ManuallyDisabled {
			b.logger.Warn("danger detected but lamp was turned off manually",
				zap.Strings("problems", v.Problems))
			return
		}
		b.logger.Warn("danger detected, turning lamp on", zap.Strings("problems", v.Problems))
		b.setLampLocked(true)

	default:
		if !b.state.LampOn {
			return
		}
		b.logger.Info("danger cleared, turning lamp off", zap.Bool("warning", v.HasWarning))
		b.setLampLocked(false)
	}
}

// SetManual is the operator's lamp switch. It also sets the master switch.
// Turning off marks the lamp as manually disabled until the master switch
// or a manual on clears it.
func (b *Bridge) SetManual(on bool) {
	b.mu.Lock()
	masterChanged := b.state.MasterEnabled != on
	b.state.MasterEnabled = on
	b.state.ManuallyDisabled = !on
	if b.state.LampOn != on {
		b.setLampLocked(on)
	}
	fn := b.onMasterChange
	b.mu.Unlock()

	b.logger.Info("lamp switched manually", zap.Bool("on", on))
	if masterChanged && fn != nil {
		fn(on)
	}
}

// SetMaster changes the master switch. Disabling it turns a lit lamp off;
// enabling it clears a manual disable.
func (b *Bridge) SetMaster(enabled bool) {
	b.mu.Lock()
	changed := b.state.MasterEnabled != enabled
	b.state.MasterEnabled = enabled
	if enabled {
		b.state.ManuallyDisabled = false
	} else if b.state.LampOn {
		b.setLampLocked(false)
	}
	fn := b.onMasterChange
	b.mu.Unlock()

	b.logger.Info("alarm master switch changed", zap.Bool("enabled", enabled))
	if changed && fn != nil {
		fn(enabled)
	}
}

func (b *Bridge) setLampLocked(on bool) {
	b.state.LampOn = on
	b.metrics.SetLamp(on)
	b.enqueue(on)
}

func (b *Bridge) enqueue(on bool) {
	b.qmu.Lock()
	if b.closing {
		b.qmu.Unlock()
		b.logger.Warn("actuator bridge closed, lamp call dropped", zap.Bool("on", on))
		return
	}
	b.queue = append(b.queue, on)
	b.qmu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) next() (on, ok, closing bool) {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	if len(b.queue) == 0 {
		return false, false, b.closing
	}
	on = b.queue[0]
	b.queue = b.queue[1:]
	return on, true, b.closing
}

func (b *Bridge) worker() {
	defer close(b.done)
	for {
		on, ok, closing := b.next()
		if ok {
			b.call(on)
			continue
		}
		if closing {
			return
		}
		<-b.wake
	}
}

func (b *Bridge) call(on bool) {
	ctx, cancel := context.WithTimeout(b.ctx, b.callTimeout)
	defer cancel()

	err := b.act.Switch(ctx, on)
	b.metrics.ActuatorCall(action(on), err)
	if err != nil {
		b.logger.Error("lamp switch failed", zap.Bool("on", on), zap.Error(err))
		return
	}
	b.logger.Debug("lamp switched", zap.Bool("on", on))
}

// Close lets queued calls finish and stops the worker. Calls still
// running when ctx expires are cancelled.
func (b *Bridge) Close(ctx context.Context) error {
	b.qmu.Lock()
	b.closing = true
	b.qmu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}

	select {
	case <-b.done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-b.done
		return ctx.Err()
	}
}

func action(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
