package service

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaswatch/gaswatch-go/pkg/api"
	"github.com/gaswatch/gaswatch-go/pkg/connection"
	"github.com/gaswatch/gaswatch-go/pkg/preferences"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
	"github.com/gaswatch/gaswatch-go/pkg/transport"
)

const testAddress = "ws://127.0.0.1:8080/ws/sensor"

var (
	coSensor  = sensor.Descriptor{Port: "COM1", Model: "ASG-CO", Serial: "100"}
	o2Sensor  = sensor.Descriptor{Port: "COM2", Model: "ASG-O2", Serial: "200"}
	lelSensor = sensor.Descriptor{Port: "COM3", Model: "ASG-LEL", Serial: "300"}
)

// fakeTransport records what the monitor asks of the session.
type fakeTransport struct {
	mu          sync.Mutex
	listener    transport.Listener
	state       transport.State
	handlers    map[string]transport.MessageHandler
	connectErr  error
	connects    int
	disconnects int
	drops       []string
	connected   chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:  make(map[string]transport.MessageHandler),
		connected: make(chan struct{}, 16),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, address string) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	if err == nil {
		f.state = transport.StateConnecting
	}
	f.mu.Unlock()

	f.connected <- struct{}{}
	return err
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.state = transport.StateClosed
	return nil
}

func (f *fakeTransport) Drop(reason string) {
	f.mu.Lock()
	if f.state != transport.StateConnecting && f.state != transport.StateConnected {
		f.mu.Unlock()
		return
	}
	f.state = transport.StateClosed
	f.drops = append(f.drops, reason)
	l := f.listener
	f.mu.Unlock()

	l.OnDisconnect(transport.CloseAbnormal, reason)
}

func (f *fakeTransport) IsConnected() bool {
	return f.State() == transport.StateConnected
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Subscribe(topic string, handler transport.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) UnsubscribeAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = make(map[string]transport.MessageHandler)
	return nil
}

// establish completes the handshake as a CONNECTED frame would.
func (f *fakeTransport) establish() {
	f.mu.Lock()
	f.state = transport.StateConnected
	l := f.listener
	f.mu.Unlock()
	l.OnConnect()
}

func (f *fakeTransport) deliver(topic, body string) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if ok {
		h(topic, []byte(body))
	}
	return ok
}

func (f *fakeTransport) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.handlers))
	for t := range f.handlers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (f *fakeTransport) dropReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.drops)
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// fakeRoster serves a settable roster.
type fakeRoster struct {
	mu     sync.Mutex
	roster []sensor.Descriptor
	err    error
	calls  int
}

func (f *fakeRoster) FetchRoster(context.Context) ([]sensor.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.roster), nil
}

func (f *fakeRoster) set(roster []sensor.Descriptor, err error) {
	f.mu.Lock()
	f.roster, f.err = roster, err
	f.mu.Unlock()
}

// fakeFans serves fixed fan ports and a settable status.
type fakeFans struct {
	mu     sync.Mutex
	ports  []string
	status []api.FanStatus
}

func (f *fakeFans) FetchFanPorts(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ports), nil
}

func (f *fakeFans) FetchFanStatus(_ context.Context, ports []string) ([]api.FanStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.status), nil
}

// lampRecorder records lamp switch calls.
type lampRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (l *lampRecorder) Switch(_ context.Context, on bool) error {
	l.mu.Lock()
	l.calls = append(l.calls, on)
	l.mu.Unlock()
	return nil
}

func (l *lampRecorder) get() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// fakeScheduler holds timers until a test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) connection.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// pending counts live timers with duration d.
func (s *fakeScheduler) pending(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.d == d && !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs the oldest live timer with duration d.
func (s *fakeScheduler) fire(t *testing.T, d time.Duration) {
	t.Helper()
	s.mu.Lock()
	var timer *fakeTimer
	for _, tm := range s.timers {
		if tm.d == d && !tm.stopped && !tm.fired {
			timer = tm
			break
		}
	}
	if timer != nil {
		timer.fired = true
	}
	s.mu.Unlock()

	require.NotNil(t, timer, "no pending timer of %v", d)
	timer.f()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventLog collects monitor events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) has(typ EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

// last returns the latest event of a type, or the zero Event.
func (l *eventLog) last(typ EventType) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == typ {
			return l.events[i]
		}
	}
	return Event{}
}

type harness struct {
	t      *testing.T
	m      *Monitor
	tr     *fakeTransport
	roster *fakeRoster
	lamp   *lampRecorder
	sched  *fakeScheduler
	clock  *fakeClock
	prefs  *preferences.FileStore
	events *eventLog
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = testAddress
	cfg.SensorHealthInterval = time.Hour
	cfg.RosterInterval = time.Hour
	cfg.FanInterval = 0
	return cfg
}

func newHarness(t *testing.T, roster []sensor.Descriptor, tweak func(*Config, *Deps)) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		tr:     newFakeTransport(),
		roster: &fakeRoster{roster: roster},
		lamp:   &lampRecorder{},
		sched:  &fakeScheduler{},
		clock:  &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		prefs:  preferences.NewFileStore(filepath.Join(t.TempDir(), "preferences.json")),
		events: &eventLog{},
	}

	cfg := testConfig()
	deps := Deps{
		Roster:      h.roster,
		Actuator:    h.lamp,
		Preferences: h.prefs,
		Transport:   h.tr,
		Scheduler:   h.sched,
		Now:         h.clock.Now,
	}
	if tweak != nil {
		tweak(&cfg, &deps)
	}

	m, err := New(cfg, deps)
	require.NoError(t, err)
	h.tr.listener = m.Listener()
	m.OnEvent(h.events.handle)
	h.m = m
	return h
}

// start starts the monitor and waits for the first connect attempt.
func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.m.Start(context.Background()))
	h.t.Cleanup(func() { _ = h.m.Stop() })
	h.waitConnect()
}

func (h *harness) waitConnect() {
	h.t.Helper()
	select {
	case <-h.tr.connected:
	case <-time.After(2 * time.Second):
		h.t.Fatal("timeout waiting for connect")
	}
	h.status()
}

// establish completes the session and waits until the loop handled it.
func (h *harness) establish() {
	h.t.Helper()
	h.tr.establish()
	h.status()
}

func (h *harness) status() Status {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.m.Status(ctx)
	require.NoError(h.t, err)
	return st
}

// run executes fn on the event loop.
func (h *harness) run(fn func()) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.m.do(ctx, fn))
}

func (h *harness) loadPrefs() *preferences.Document {
	h.t.Helper()
	doc, err := h.prefs.Load(context.Background())
	require.NoError(h.t, err)
	require.NotNil(h.t, doc)
	return doc
}
