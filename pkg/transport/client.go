package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/log"
	"github.com/gaswatch/gaswatch-go/pkg/metrics"
	"github.com/gaswatch/gaswatch-go/pkg/stomp"
)

// State is the session state of a Client.
type State int

const (
	// StateIdle indicates no session has been opened yet.
	StateIdle State = iota

	// StateConnecting indicates the transport is open and CONNECTED is
	// awaited.
	StateConnecting

	// StateConnected indicates an established STOMP session.
	StateConnected

	// StateClosed indicates the last session has ended.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Close codes reported through OnDisconnect.
const (
	CloseNormal   = websocket.CloseNormalClosure
	CloseAbnormal = websocket.CloseAbnormalClosure
)

// Client errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("session closed")
)

// FrameError is an ERROR frame received from the server.
type FrameError struct {
	Message string
	Body    string
}

func (e *FrameError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stomp error: %s", e.Message)
	}
	return fmt.Sprintf("stomp error: %s: %s", e.Message, e.Body)
}

// Config configures a Client.
type Config struct {
	// Host is the STOMP virtual host sent in CONNECT (default "/").
	Host string

	// HeartBeat is the heart-beat header offered in CONNECT.
	HeartBeat string

	// HeartbeatInterval is the interval between outgoing heartbeats.
	HeartbeatInterval time.Duration

	// HealthInterval is the interval between subscription health checks.
	HealthInterval time.Duration

	// StaleAfter is how long a topic may stay silent before resubscribing.
	StaleAfter time.Duration

	// WriteTimeout bounds each write (0 = no timeout).
	WriteTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Host:              stomp.DefaultHost,
		HeartBeat:         stomp.DefaultHeartBeat,
		HeartbeatInterval: DefaultHeartbeatInterval,
		HealthInterval:    DefaultHealthInterval,
		StaleAfter:        DefaultStaleAfter,
		WriteTimeout:      10 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the operational logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProtocolLogger sets the protocol capture sink.
func WithProtocolLogger(l log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.protoLog = l
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock replaces time.Now for liveness bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// session is one transport connection. A session is never reopened.
type session struct {
	id      string
	address string
	conn    Conn
	ctx     context.Context
	cancel  context.CancelFunc

	// closing is set when the client itself ends the session, so the read
	// loop exits quietly.
	closing bool

	heartbeat *HeartbeatMonitor
	health    *SubscriptionHealth

	notifyOnce sync.Once
}

// Client is a STOMP 1.2 client holding one session at a time.
type Client struct {
	cfg      Config
	dialer   Dialer
	listener Listener
	logger   *zap.Logger
	protoLog log.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	state   State
	session *session
	subs    *subscriptionTable

	writeMu sync.Mutex
}

// NewClient creates a client. A nil listener ignores events.
func NewClient(dialer Dialer, listener Listener, cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.HeartBeat == "" {
		cfg.HeartBeat = def.HeartBeat
	}
	if listener == nil {
		listener = NopListener{}
	}

	c := &Client{
		cfg:      cfg,
		dialer:   dialer,
		listener: listener,
		logger:   zap.NewNop(),
		protoLog: log.NoopLogger{},
		now:      time.Now,
		state:    StateIdle,
		subs:     newSubscriptionTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true while a STOMP session is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ConnectionID returns the id of the current or last session.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.id
}

// Connect opens a session to address and sends CONNECT. It returns once the
// frame is written; OnConnect follows when CONNECTED arrives.
func (c *Client) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	old := c.state
	c.state = StateConnecting
	c.mu.Unlock()

	c.captureState("", old, StateConnecting, address)

	conn, err := c.dialer.Dial(ctx, address)
	if err != nil {
		c.setState(StateClosed, err.Error())
		return err
	}

	sctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:      uuid.NewString(),
		address: address,
		conn:    conn,
		ctx:     sctx,
		cancel:  cancel,
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.logger.Info("transport open, sending CONNECT",
		zap.String("address", address),
		zap.String("conn_id", sess.id))

	if err := c.writeFrame(sess, stomp.Connect(c.cfg.Host, c.cfg.HeartBeat)); err != nil {
		c.mu.Lock()
		c.teardownLocked(sess)
		c.mu.Unlock()
		return fmt.Errorf("send CONNECT: %w", err)
	}

	go c.readLoop(sess)
	return nil
}

// Subscribe registers handler for topic and sends SUBSCRIBE if connected.
// Subscribing a known topic only replaces its handler.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	req, created := c.subs.add(topic, handler, c.now())
	sess, connected := c.session, c.state == StateConnected
	c.mu.Unlock()

	if !created || !connected {
		return nil
	}
	return c.writeFrame(sess, stomp.Subscribe(req.id, req.topic))
}

// Unsubscribe sends UNSUBSCRIBE for every id topic holds and forgets it.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	ids := c.subs.remove(topic)
	sess, connected := c.session, c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendUnsubscribes(sess, ids)
}

// UnsubscribeAll forgets every topic and sends UNSUBSCRIBE for each id if
// connected.
func (c *Client) UnsubscribeAll() error {
	c.mu.Lock()
	ids := c.subs.removeAll()
	sess, connected := c.session, c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendUnsubscribes(sess, ids)
}

// Resubscribe sends a fresh SUBSCRIBE for a known topic without releasing
// the ids it already holds.
func (c *Client) Resubscribe(topic string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	req, ok := c.subs.resubscribe(topic, c.now())
	sess := c.session
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("resubscribe %s: unknown topic", topic)
	}
	if err := c.writeFrame(sess, stomp.Subscribe(req.id, req.topic)); err != nil {
		return err
	}
	c.metrics.Resubscribed()
	return nil
}

// Topics returns the subscribed topics, sorted.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.topics()
}

// SubscriptionIDs returns the ids a topic holds.
func (c *Client) SubscriptionIDs(topic string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.ids(topic)
}

// StaleTopics implements StaleTracker.
func (c *Client) StaleTopics(now time.Time, window time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.stale(now, window)
}

// CheckSubscriptions runs one subscription health pass immediately.
func (c *Client) CheckSubscriptions() []string {
	c.mu.Lock()
	var health *SubscriptionHealth
	if c.state == StateConnected {
		health = c.session.health
	}
	c.mu.Unlock()

	if health == nil {
		return nil
	}
	return health.Check(c.now())
}

// Disconnect sends DISCONNECT, closes with a normal closure and stops all
// timers. No OnDisconnect is fired.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	sess := c.session
	if sess == nil || c.state == StateClosed || c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	sess.closing = true
	wasConnected := c.state == StateConnected
	c.mu.Unlock()

	if wasConnected {
		if err := c.writeFrame(sess, stomp.Disconnect()); err != nil {
			c.logger.Debug("DISCONNECT not sent", zap.Error(err))
		}
	}
	c.writeClose(sess, CloseNormal, "client disconnect")

	c.mu.Lock()
	c.teardownLocked(sess)
	c.mu.Unlock()

	c.logger.Info("disconnected", zap.String("conn_id", sess.id))
	return nil
}

// Drop force-closes the session and reports it as an unexpected drop with
// code 1006.
func (c *Client) Drop(reason string) {
	c.mu.Lock()
	sess := c.session
	if sess == nil || c.state == StateClosed || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	sess.closing = true
	c.teardownLocked(sess)
	c.mu.Unlock()

	c.logger.Warn("session dropped", zap.String("reason", reason), zap.String("conn_id", sess.id))
	c.notifyDisconnect(sess, CloseAbnormal, reason)
}

// readLoop reads messages until the connection fails or is closed.
func (c *Client) readLoop(sess *session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			c.handleReadError(sess, err)
			return
		}
		c.handleData(sess, data)
	}
}

func (c *Client) handleReadError(sess *session, err error) {
	c.mu.Lock()
	if c.session != sess || sess.closing {
		c.mu.Unlock()
		return
	}
	c.teardownLocked(sess)
	c.mu.Unlock()

	code, reason := CloseAbnormal, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}

	c.logger.Warn("transport closed",
		zap.String("conn_id", sess.id),
		zap.Int("code", code),
		zap.String("reason", reason))
	c.notifyDisconnect(sess, code, reason)
}

func (c *Client) handleData(sess *session, data []byte) {
	if stomp.IsHeartbeat(data) {
		c.captureControl(sess, log.DirectionIn, log.ControlHeartbeat, nil, "")
		return
	}

	frame, err := stomp.Decode(data)
	if err != nil {
		c.metrics.ParseError()
		c.logger.Warn("dropping undecodable frame", zap.Error(err), zap.Int("size", len(data)))
		c.captureError(sess, log.LayerFrame, err, "decode")
		return
	}

	c.metrics.FrameReceived(frame.Command)
	c.captureFrame(sess, log.DirectionIn, frame, len(data))

	switch frame.Command {
	case stomp.CommandConnected:
		c.handleConnected(sess, frame)
	case stomp.CommandMessage:
		c.handleMessage(sess, frame)
	case stomp.CommandError:
		c.logger.Error("server sent ERROR",
			zap.String("message", frame.Header(stomp.HeaderMessage)),
			zap.String("body", frame.Body))
		c.listener.OnError(&FrameError{
			Message: frame.Header(stomp.HeaderMessage),
			Body:    frame.Body,
		})
	default:
		c.logger.Debug("ignoring frame", zap.String("command", frame.Command))
	}
}

func (c *Client) handleConnected(sess *session, frame stomp.Frame) {
	c.mu.Lock()
	if c.session != sess || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	reqs := c.subs.beginSession(c.now())

	sess.heartbeat = NewHeartbeatMonitor(c.cfg.HeartbeatInterval, func() error {
		return c.writeHeartbeat(sess)
	}, c.logger)
	sess.health = NewSubscriptionHealth(c.cfg.HealthInterval, c.cfg.StaleAfter,
		c, c.Resubscribe, c.now, c.logger)
	c.mu.Unlock()

	c.logger.Info("STOMP session established",
		zap.String("conn_id", sess.id),
		zap.String("version", frame.Header(stomp.HeaderVersion)),
		zap.Int("topics", len(reqs)))
	c.captureState(sess.id, StateConnecting, StateConnected, "")

	for _, req := range reqs {
		if err := c.writeFrame(sess, stomp.Subscribe(req.id, req.topic)); err != nil {
			c.logger.Warn("subscribe failed", zap.String("topic", req.topic), zap.Error(err))
		}
	}

	sess.heartbeat.Start(sess.ctx)
	sess.health.Start(sess.ctx)

	c.listener.OnConnect()
}

func (c *Client) handleMessage(sess *session, frame stomp.Frame) {
	topic := frame.Header(stomp.HeaderDestination)

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	handler, ok := c.subs.touch(topic, c.now())
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("message for unknown destination", zap.String("topic", topic))
		return
	}

	body := []byte(frame.Body)
	if handler != nil {
		handler(topic, body)
	}
	c.listener.OnMessage(topic, body)
}

// teardownLocked ends sess. Caller must hold c.mu.
func (c *Client) teardownLocked(sess *session) {
	if c.session == sess && c.state != StateClosed {
		c.state = StateClosed
	}
	sess.cancel()
	if sess.heartbeat != nil {
		sess.heartbeat.Stop()
	}
	if sess.health != nil {
		sess.health.Stop()
	}
	sess.conn.Close()
}

func (c *Client) notifyDisconnect(sess *session, code int, reason string) {
	sess.notifyOnce.Do(func() {
		cc := code
		c.captureControl(sess, log.DirectionIn, log.ControlClose, &cc, reason)
		c.captureState(sess.id, StateConnected, StateClosed, reason)
		c.listener.OnDisconnect(code, reason)
	})
}

func (c *Client) setState(s State, reason string) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	c.captureState("", old, s, reason)
}

func (c *Client) sendUnsubscribes(sess *session, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := c.writeFrame(sess, stomp.Unsubscribe(id)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
