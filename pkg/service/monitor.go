package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/actuator"
	"github.com/gaswatch/gaswatch-go/pkg/alarm"
	"github.com/gaswatch/gaswatch-go/pkg/connection"
	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/metrics"
	"github.com/gaswatch/gaswatch-go/pkg/preferences"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
	"github.com/gaswatch/gaswatch-go/pkg/transport"
)

// Resync reasons, used as the metrics label.
const (
	reasonStartup = "startup"
	reasonBackoff = "backoff"
	reasonManual  = "manual"
	reasonHealth  = "sensor_health"
)

// Deps are the collaborators of a Monitor.
type Deps struct {
	// Roster fetches the sensor roster. Required.
	Roster RosterSource

	// Actuator switches the warning lamp. Required.
	Actuator        actuator.Actuator
	ActuatorOptions []actuator.Option

	// Fans enables the fan poller when set.
	Fans FanSource

	// Preferences persists names, overrides and the master switch. Nil
	// keeps them in memory.
	Preferences preferences.Store

	// Transport is the STOMP session. When nil, one is built from Dialer,
	// TransportConfig and TransportOptions.
	Transport        Transport
	Dialer           transport.Dialer
	TransportConfig  transport.Config
	TransportOptions []transport.Option

	// Thresholds is the threshold store. Nil creates one with defaults.
	Thresholds *gas.Store

	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Scheduler connection.Scheduler
	Now       func() time.Time
}

// Monitor is the monitoring controller.
type Monitor struct {
	cfg Config

	roster     RosterSource
	fans       FanSource
	prefs      preferences.Store
	act        actuator.Actuator
	actOpts    []actuator.Option
	client     Transport
	thresholds *gas.Store
	engine     *alarm.Engine
	reconnect  *connection.Manager
	metrics    *metrics.Metrics
	logger     *zap.Logger
	scheduler  connection.Scheduler
	now        func() time.Time

	mu       sync.RWMutex
	runState ServiceState
	handlers []EventHandler

	reasonMu sync.Mutex
	reason   string

	// resyncMu serializes resync runs.
	resyncMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	events chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	// Owned by the event loop.
	state        *alarm.State
	doc          *preferences.Document
	bridge       *actuator.Bridge
	verdict      alarm.Verdict
	healthActive bool
	resyncTimer  connection.Timer
	connectTimer connection.Timer
	fanPorts     []string
	fanStatus    map[string]bool
}

// New creates a monitor.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Roster == nil || deps.Actuator == nil {
		return nil, fmt.Errorf("%w: roster source and actuator are required", ErrInvalidConfig)
	}
	if deps.Transport == nil && deps.Dialer == nil {
		return nil, fmt.Errorf("%w: transport or dialer is required", ErrInvalidConfig)
	}

	m := &Monitor{
		cfg:        cfg,
		roster:     deps.Roster,
		fans:       deps.Fans,
		prefs:      deps.Preferences,
		act:        deps.Actuator,
		actOpts:    deps.ActuatorOptions,
		client:     deps.Transport,
		thresholds: deps.Thresholds,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		scheduler:  deps.Scheduler,
		now:        deps.Now,
		runState:   StateIdle,
		events:     make(chan func(), 64),
		done:       make(chan struct{}),
		state:      alarm.NewState(),
		doc:        preferences.New(),
		fanStatus:  make(map[string]bool),
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.scheduler == nil {
		m.scheduler = connection.SchedulerFunc(func(d time.Duration, f func()) connection.Timer {
			return time.AfterFunc(d, f)
		})
	}
	if m.thresholds == nil {
		m.thresholds = gas.NewStore()
	}
	def := DefaultConfig()
	if m.cfg.FetchTimeout <= 0 {
		m.cfg.FetchTimeout = def.FetchTimeout
	}
	if m.cfg.PersistTimeout <= 0 {
		m.cfg.PersistTimeout = def.PersistTimeout
	}
	m.engine = alarm.NewEngine(m.thresholds, m.logger.Named("alarm"))

	if m.client == nil {
		opts := append([]transport.Option{
			transport.WithLogger(m.logger.Named("transport")),
			transport.WithMetrics(m.metrics),
			transport.WithClock(m.now),
		}, deps.TransportOptions...)
		m.client = transport.NewClient(deps.Dialer, listener{m}, deps.TransportConfig, opts...)
	}

	m.reconnect = connection.NewManager(cfg.Backoff, func(context.Context) {
		go m.resync(m.takeReason())
	}, connection.WithScheduler(m.scheduler), connection.WithLogger(m.logger.Named("reconnect")))
	m.reconnect.OnStateChange(func(_, newState connection.State) {
		m.metrics.SetConnectionState(int(newState))
	})
	m.reconnect.OnReconnecting(func(attempt int, delay time.Duration) {
		m.metrics.ReconnectScheduled()
		m.emit(Event{Type: EventReconnecting, Attempt: attempt, Delay: delay})
	})
	m.reconnect.OnFailed(func() {
		m.emit(Event{Type: EventFailed})
	})

	return m, nil
}

// Listener returns the transport listener that feeds the event loop. It is
// needed only when Deps.Transport is supplied.
func (m *Monitor) Listener() transport.Listener {
	return listener{m}
}

// State returns the lifecycle state.
func (m *Monitor) State() ServiceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runState
}

// OnEvent registers an event handler.
func (m *Monitor) OnEvent(handler EventHandler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()
}

// Start loads preferences, starts the event loop and the periodic tasks,
// then runs the first resync in the background.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.runState != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.runState = StateStarting
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.loadPreferences(ctx)

	opts := append([]actuator.Option{
		actuator.WithLogger(m.logger.Named("actuator")),
		actuator.WithMetrics(m.metrics),
	}, m.actOpts...)
	m.bridge = actuator.NewBridge(m.act, m.doc.MasterEnabled(), opts...)
	m.bridge.OnMasterChange(func(enabled bool) {
		m.doc.SetMasterEnabled(enabled)
		m.savePreferences()
	})

	go m.loop()

	m.every(m.cfg.SensorHealthInterval, func() {
		m.post(func() { m.checkSensorHealth(m.now()) })
	})
	m.every(m.cfg.RosterInterval, m.refreshRoster)
	if m.fans != nil {
		m.every(m.cfg.FanInterval, m.pollFans)
	}

	m.mu.Lock()
	m.runState = StateRunning
	m.mu.Unlock()

	m.logger.Info("monitor started", zap.String("address", m.cfg.Address))

	m.reconnect.NotifyConnecting()
	go m.resync(reasonStartup)
	return nil
}

// Stop closes the session, stops every task and waits for pending lamp
// calls.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.runState != StateRunning {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.runState = StateStopping
	m.mu.Unlock()

	m.reconnect.Close()
	m.cancel()
	<-m.done
	m.wg.Wait()

	// Wait for a running resync to unwind before closing the session.
	m.resyncMu.Lock()
	m.resyncMu.Unlock()

	m.stopTimers()
	if err := m.client.Disconnect(); err != nil {
		m.logger.Debug("disconnect failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), actuator.DefaultCallTimeout)
	defer cancel()
	if err := m.bridge.Close(ctx); err != nil {
		m.logger.Warn("lamp calls abandoned on shutdown", zap.Error(err))
	}

	m.mu.Lock()
	m.runState = StateStopped
	m.mu.Unlock()

	m.logger.Info("monitor stopped")
	return nil
}

func (m *Monitor) loop() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.events:
			fn()
		case <-m.ctx.Done():
			return
		}
	}
}

// post queues fn on the event loop. It returns false once the monitor is
// shutting down.
func (m *Monitor) post(fn func()) bool {
	select {
	case m.events <- fn:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// do runs fn on the event loop and waits for it.
func (m *Monitor) do(ctx context.Context, fn func()) error {
	if m.State() != StateRunning {
		return ErrNotStarted
	}
	done := make(chan struct{})
	if !m.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNotStarted
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrNotStarted
	}
}

// every runs fn each d until the monitor stops. A non-positive d disables
// the task.
func (m *Monitor) every(d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (m *Monitor) emit(e Event) {
	m.mu.RLock()
	handlers := slices.Clone(m.handlers)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

func (m *Monitor) setReason(reason string) {
	m.reasonMu.Lock()
	m.reason = reason
	m.reasonMu.Unlock()
}

func (m *Monitor) takeReason() string {
	m.reasonMu.Lock()
	defer m.reasonMu.Unlock()
	reason := m.reason
	m.reason = ""
	if reason == "" {
		reason = reasonBackoff
	}
	return reason
}

func (m *Monitor) stopTimers() {
	if m.resyncTimer != nil {
		m.resyncTimer.Stop()
		m.resyncTimer = nil
	}
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
}

// listener forwards transport callbacks into the event loop.
type listener struct {
	m *Monitor
}

func (l listener) OnConnect() {
	l.m.post(l.m.handleConnected)
}

// OnDisconnect may run on the event loop itself when the loop drops the
// session, so it must not wait for the queue.
func (l listener) OnDisconnect(code int, reason string) {
	go l.m.post(func() {
		l.m.handleSessionLost(fmt.Sprintf("closed (%d): %s", code, reason))
	})
}

func (l listener) OnError(err error) {
	l.m.post(func() { l.m.handleFrameError(err) })
}

// OnMessage is unused; readings arrive through the per-topic handlers.
func (listener) OnMessage(string, []byte) {}

func (m *Monitor) handleConnected() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	m.reconnect.NotifyConnected()
	m.state.SeedLiveness(m.now())
	m.healthActive = true
	m.metrics.SetTracked(m.state.Len())

	m.logger.Info("session established", zap.Int("sensors", m.state.Len()))
	m.emit(Event{Type: EventConnected, Sensors: m.state.Len()})
}

// handleSessionLost reports a drop, an error frame or a failed connect to
// the reconnect manager.
func (m *Monitor) handleSessionLost(reason string) {
	m.healthActive = false
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	m.emit(Event{Type: EventDisconnected, Message: reason})

	_, err := m.reconnect.NotifyConnectionLost(reason)
	switch {
	case err == nil, errors.Is(err, connection.ErrReconnectPending):
	case errors.Is(err, connection.ErrFailedPermanently):
		m.logger.Error("giving up on the telemetry server; use reconnect to retry")
	default:
		m.logger.Debug("connection loss not scheduled", zap.Error(err))
	}
}

func (m *Monitor) handleFrameError(err error) {
	m.logger.Error("server error frame", zap.Error(err))
	m.client.Drop("server error frame")
}

func (m *Monitor) handleReading(topic string, body []byte, at time.Time) {
	d, ok := m.state.SensorByTopic(topic)
	if !ok {
		m.logger.Debug("reading for unknown topic", zap.String("topic", topic))
		return
	}
	m.state.Touch(d.ID(), at)

	r, err := sensor.DecodeReading(d.Kind(), body)
	if err != nil {
		m.logger.Warn("reading dropped",
			zap.String("sensor", d.ID()),
			zap.Error(err))
		return
	}

	res, ok := m.engine.Apply(m.state, d.ID(), r)
	if !ok {
		return
	}
	for _, st := range res.Statuses {
		m.metrics.Reading(st.String())
	}
	if r.Advisory != "" {
		m.emit(Event{Type: EventServerAlarm, SensorID: d.ID(), Message: r.Advisory, Level: res.AdvisoryLevel})
	}
	m.evaluate()
}

// evaluate recomputes the site verdict and drives the lamp.
func (m *Monitor) evaluate() {
	v := m.engine.Verdict(m.state)
	m.metrics.SetDangerous(v.Dangerous)

	if !sameVerdict(v, m.verdict) {
		m.verdict = v
		if v.Safe() {
			m.logger.Info("site safe")
		} else {
			m.logger.Warn("site verdict changed",
				zap.Bool("dangerous", v.Dangerous),
				zap.Strings("problems", v.Problems))
		}
		m.emit(Event{Type: EventVerdictChanged, Verdict: v})
	}

	m.withLamp(func() { m.bridge.ApplyVerdict(v) })
}

// withLamp runs fn and emits EventLampChanged if the lamp state moved.
func (m *Monitor) withLamp(fn func()) {
	before := m.bridge.State()
	fn()
	if after := m.bridge.State(); after != before {
		m.emit(Event{Type: EventLampChanged, Lamp: after})
	}
}

func sameVerdict(a, b alarm.Verdict) bool {
	return a.Dangerous == b.Dangerous && a.HasWarning == b.HasWarning && slices.Equal(a.Problems, b.Problems)
}

func (m *Monitor) loadPreferences(ctx context.Context) {
	if m.prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
	defer cancel()

	doc, err := m.prefs.Load(ctx)
	if err != nil {
		m.logger.Warn("preferences not loaded, using defaults", zap.Error(err))
		return
	}
	if doc == nil {
		return
	}
	if err := m.thresholds.LoadOverrides(doc.Thresholds); err != nil {
		m.logger.Warn("stored threshold overrides rejected", zap.Error(err))
		doc.Thresholds = m.thresholds.Overrides()
	}
	m.doc = doc
}

func (m *Monitor) savePreferences() {
	if m.prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PersistTimeout)
	defer cancel()

	m.doc.SavedAt = m.now()
	if err := m.prefs.Save(ctx, m.doc); err != nil {
		m.logger.Warn("preferences not saved", zap.Error(err))
	}
}

