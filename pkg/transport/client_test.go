package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaswatch/gaswatch-go/pkg/log"
	"github.com/gaswatch/gaswatch-go/pkg/stomp"
)

const waitTimeout = 2 * time.Second

// testBroker accepts WebSocket upgrades and hands each connection to the
// test, which plays the STOMP server.
type testBroker struct {
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()
	b := &testBroker{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{Subprotocols: []string{stomp.Subprotocol}}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + SensorPath
}

func (b *testBroker) accept(t *testing.T) *peer {
	t.Helper()
	select {
	case conn := <-b.conns:
		t.Cleanup(func() { conn.Close() })
		return &peer{t: t, conn: conn}
	case <-time.After(waitTimeout):
		t.Fatal("no connection accepted")
		return nil
	}
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
}

// next returns the next non-heartbeat frame.
func (p *peer) next() stomp.Frame {
	p.t.Helper()
	for {
		data, err := p.read()
		require.NoError(p.t, err)
		if stomp.IsHeartbeat(data) {
			continue
		}
		f, err := stomp.Decode(data)
		require.NoError(p.t, err)
		return f
	}
}

func (p *peer) read() ([]byte, error) {
	p.conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := p.conn.ReadMessage()
	return data, err
}

func (p *peer) send(f stomp.Frame) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, stomp.Encode(f)))
}

func (p *peer) sendRaw(data string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (p *peer) connected() {
	p.send(stomp.Frame{Command: stomp.CommandConnected, Headers: stomp.Headers{stomp.HeaderVersion: stomp.Version}})
}

func (p *peer) message(topic, body string) {
	p.send(stomp.Frame{
		Command: stomp.CommandMessage,
		Headers: stomp.Headers{stomp.HeaderDestination: topic, stomp.HeaderMessageID: "1"},
		Body:    body,
	})
}

type closeEvent struct {
	code   int
	reason string
}

type topicMessage struct {
	topic string
	body  string
}

type recordingListener struct {
	connects    chan struct{}
	disconnects chan closeEvent
	errs        chan error
	messages    chan topicMessage
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		connects:    make(chan struct{}, 16),
		disconnects: make(chan closeEvent, 16),
		errs:        make(chan error, 16),
		messages:    make(chan topicMessage, 16),
	}
}

func (l *recordingListener) OnConnect() { l.connects <- struct{}{} }
func (l *recordingListener) OnDisconnect(code int, reason string) {
	l.disconnects <- closeEvent{code, reason}
}
func (l *recordingListener) OnError(err error) { l.errs <- err }
func (l *recordingListener) OnMessage(topic string, body []byte) {
	l.messages <- topicMessage{topic, string(body)}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func assertNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

type captureLog struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLog) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLog) frames(dir log.Direction) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		if e.Frame != nil && e.Direction == dir {
			out = append(out, e.Frame.Command)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.HealthInterval = time.Hour
	return cfg
}

// connectClient runs the handshake and returns the client and broker side.
func connectClient(t *testing.T, opts ...Option) (*Client, *recordingListener, *peer) {
	t.Helper()
	broker := newTestBroker(t)
	listener := newRecordingListener()
	client := NewClient(NewWebSocketDialer(), listener, testConfig(), opts...)
	t.Cleanup(func() { client.Disconnect() })

	require.NoError(t, client.Connect(context.Background(), broker.url()))
	p := broker.accept(t)

	f := p.next()
	require.Equal(t, stomp.CommandConnect, f.Command)
	p.connected()
	waitFor(t, listener.connects, "OnConnect")
	return client, listener, p
}

func TestClientConnectHandshake(t *testing.T) {
	broker := newTestBroker(t)
	listener := newRecordingListener()
	client := NewClient(NewWebSocketDialer(), listener, testConfig())
	defer client.Disconnect()

	assert.Equal(t, StateIdle, client.State())
	require.NoError(t, client.Connect(context.Background(), broker.url()))

	p := broker.accept(t)
	assert.Equal(t, stomp.Subprotocol, p.conn.Subprotocol())

	f := p.next()
	assert.Equal(t, stomp.CommandConnect, f.Command)
	assert.Equal(t, "1.2", f.Header(stomp.HeaderAcceptVersion))
	assert.Equal(t, "/", f.Header(stomp.HeaderHost))
	assert.Equal(t, "10000,10000", f.Header(stomp.HeaderHeartBeat))
	assert.Equal(t, StateConnecting, client.State())

	p.connected()
	waitFor(t, listener.connects, "OnConnect")
	assert.True(t, client.IsConnected())
	assert.NotEmpty(t, client.ConnectionID())

	assert.ErrorIs(t, client.Connect(context.Background(), broker.url()), ErrAlreadyConnected)
}

func TestClientDialFailure(t *testing.T) {
	client := NewClient(NewWebSocketDialer(), nil, testConfig())
	err := client.Connect(context.Background(), "ws://127.0.0.1:1/ws/sensor")
	assert.Error(t, err)
	assert.Equal(t, StateClosed, client.State())
}

func TestClientSubscriptionsSentOnConnected(t *testing.T) {
	broker := newTestBroker(t)
	listener := newRecordingListener()
	client := NewClient(NewWebSocketDialer(), listener, testConfig())
	defer client.Disconnect()

	require.NoError(t, client.Subscribe("/topic/sensor/ASG-CO/COM4/2", nil))
	require.NoError(t, client.Subscribe("/topic/sensor/ASG-CO/COM3/1", nil))
	// Idempotent per topic.
	require.NoError(t, client.Subscribe("/topic/sensor/ASG-CO/COM3/1", nil))

	require.NoError(t, client.Connect(context.Background(), broker.url()))
	p := broker.accept(t)
	p.next()
	p.connected()

	first, second := p.next(), p.next()
	waitFor(t, listener.connects, "OnConnect")

	assert.Equal(t, stomp.CommandSubscribe, first.Command)
	assert.Equal(t, "/topic/sensor/ASG-CO/COM3/1", first.Header(stomp.HeaderDestination))
	assert.Equal(t, "/topic/sensor/ASG-CO/COM4/2", second.Header(stomp.HeaderDestination))
	assert.Equal(t, stomp.AckAuto, first.Header(stomp.HeaderAck))
	assert.True(t, strings.HasPrefix(first.Header(stomp.HeaderID), "sub-"))
	assert.NotEqual(t, first.Header(stomp.HeaderID), second.Header(stomp.HeaderID))
}

func TestClientRoutesMessages(t *testing.T) {
	client, listener, p := connectClient(t)

	got := make(chan topicMessage, 4)
	topic := "/topic/sensor/ASG-LEL/COM5/77"
	require.NoError(t, client.Subscribe(topic, func(topic string, body []byte) {
		got <- topicMessage{topic, string(body)}
	}))
	assert.Equal(t, stomp.CommandSubscribe, p.next().Command)

	p.message("/topic/sensor/unknown/COM9/1", `{"lel":1}`)
	p.message(topic, `{"lel":"4.5"}`)

	msg := waitFor(t, got, "handler")
	assert.Equal(t, topicMessage{topic, `{"lel":"4.5"}`}, msg)

	generic := waitFor(t, listener.messages, "OnMessage")
	assert.Equal(t, topic, generic.topic)
	assertNone(t, listener.messages, "message for unknown destination")
}

func TestClientErrorFrame(t *testing.T) {
	_, listener, p := connectClient(t)

	p.send(stomp.Frame{
		Command: stomp.CommandError,
		Headers: stomp.Headers{stomp.HeaderMessage: "malformed frame"},
		Body:    "details",
	})

	err := waitFor(t, listener.errs, "OnError")
	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "malformed frame", fe.Message)
	assert.Equal(t, "details", fe.Body)
}

func TestClientDropsUndecodableFrame(t *testing.T) {
	client, listener, p := connectClient(t)

	topic := "/topic/sensor/ASG-CO/COM3/1"
	require.NoError(t, client.Subscribe(topic, nil))
	p.next()

	p.sendRaw("HELLO\n\n\x00")
	p.sendRaw("\n")
	p.message(topic, "{}")

	msg := waitFor(t, listener.messages, "OnMessage")
	assert.Equal(t, topic, msg.topic)
	assert.True(t, client.IsConnected())
}

func TestClientUnexpectedCloseFiresOnDisconnect(t *testing.T) {
	client, listener, p := connectClient(t)

	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "restarting")
	require.NoError(t, p.conn.WriteMessage(websocket.CloseMessage, msg))

	ev := waitFor(t, listener.disconnects, "OnDisconnect")
	assert.Equal(t, websocket.CloseInternalServerErr, ev.code)
	assert.Equal(t, "restarting", ev.reason)
	assert.Equal(t, StateClosed, client.State())

	// Reported once per session.
	client.Drop("again")
	assertNone(t, listener.disconnects, "second OnDisconnect")
}

func TestClientAbruptCloseReportsAbnormal(t *testing.T) {
	_, listener, p := connectClient(t)

	p.conn.UnderlyingConn().Close()

	ev := waitFor(t, listener.disconnects, "OnDisconnect")
	assert.Equal(t, CloseAbnormal, ev.code)
}

func TestClientDisconnectIsSilent(t *testing.T) {
	client, listener, p := connectClient(t)

	require.NoError(t, client.Disconnect())

	assert.Equal(t, stomp.CommandDisconnect, p.next().Command)
	_, err := p.read()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)

	assert.Equal(t, StateClosed, client.State())
	assertNone(t, listener.disconnects, "OnDisconnect after Disconnect")

	// Repeated Disconnect is a no-op.
	assert.NoError(t, client.Disconnect())
}

func TestClientDrop(t *testing.T) {
	client, listener, _ := connectClient(t)

	client.Drop("sensors silent")

	ev := waitFor(t, listener.disconnects, "OnDisconnect")
	assert.Equal(t, CloseAbnormal, ev.code)
	assert.Equal(t, "sensors silent", ev.reason)
	assert.Equal(t, StateClosed, client.State())
	assertNone(t, listener.disconnects, "duplicate OnDisconnect")
}

func TestClientUnsubscribeReleasesAllIDs(t *testing.T) {
	client, _, p := connectClient(t)

	topic := "/topic/sensor/ASG-CO/COM3/1"
	require.NoError(t, client.Subscribe(topic, nil))
	first := p.next()

	require.NoError(t, client.Resubscribe(topic))
	second := p.next()
	assert.Equal(t, topic, second.Header(stomp.HeaderDestination))
	assert.NotEqual(t, first.Header(stomp.HeaderID), second.Header(stomp.HeaderID))
	assert.Len(t, client.SubscriptionIDs(topic), 2)

	require.NoError(t, client.Unsubscribe(topic))
	u1, u2 := p.next(), p.next()
	assert.Equal(t, stomp.CommandUnsubscribe, u1.Command)
	assert.ElementsMatch(t,
		[]string{first.Header(stomp.HeaderID), second.Header(stomp.HeaderID)},
		[]string{u1.Header(stomp.HeaderID), u2.Header(stomp.HeaderID)})
	assert.Empty(t, client.Topics())
}

func TestClientUnsubscribeAll(t *testing.T) {
	client, _, p := connectClient(t)

	require.NoError(t, client.Subscribe("/topic/a", nil))
	require.NoError(t, client.Subscribe("/topic/b", nil))
	p.next()
	p.next()

	require.NoError(t, client.UnsubscribeAll())
	assert.Equal(t, stomp.CommandUnsubscribe, p.next().Command)
	assert.Equal(t, stomp.CommandUnsubscribe, p.next().Command)
	assert.Empty(t, client.Topics())
}

func TestClientResubscribeRequiresSession(t *testing.T) {
	client := NewClient(NewWebSocketDialer(), nil, testConfig())
	require.NoError(t, client.Subscribe("/topic/a", nil))
	assert.ErrorIs(t, client.Resubscribe("/topic/a"), ErrNotConnected)
}

func TestClientReconnectResendsSubscriptions(t *testing.T) {
	broker := newTestBroker(t)
	listener := newRecordingListener()
	client := NewClient(NewWebSocketDialer(), listener, testConfig())
	defer client.Disconnect()

	require.NoError(t, client.Subscribe("/topic/a", nil))

	require.NoError(t, client.Connect(context.Background(), broker.url()))
	p1 := broker.accept(t)
	p1.next()
	p1.connected()
	oldID := p1.next().Header(stomp.HeaderID)
	waitFor(t, listener.connects, "first OnConnect")
	firstConn := client.ConnectionID()

	client.Drop("test")
	waitFor(t, listener.disconnects, "OnDisconnect")

	require.NoError(t, client.Connect(context.Background(), broker.url()))
	p2 := broker.accept(t)
	p2.next()
	p2.connected()
	sub := p2.next()
	waitFor(t, listener.connects, "second OnConnect")

	assert.Equal(t, "/topic/a", sub.Header(stomp.HeaderDestination))
	assert.NotEqual(t, oldID, sub.Header(stomp.HeaderID))
	assert.Equal(t, []string{sub.Header(stomp.HeaderID)}, client.SubscriptionIDs("/topic/a"))
	assert.NotEqual(t, firstConn, client.ConnectionID())
}

func TestClientCheckSubscriptionsResubscribesStaleTopics(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	client, _, p := connectClient(t, WithClock(clock))

	require.NoError(t, client.Subscribe("/topic/quiet", nil))
	require.NoError(t, client.Subscribe("/topic/busy", nil))
	p.next()
	p.next()

	advance(20 * time.Second)
	p.message("/topic/busy", "{}")
	require.Eventually(t, func() bool {
		return len(client.StaleTopics(clock().Add(11*time.Second), 30*time.Second)) == 1
	}, waitTimeout, 10*time.Millisecond)

	advance(11 * time.Second)
	assert.Equal(t, []string{"/topic/quiet"}, client.CheckSubscriptions())

	f := p.next()
	assert.Equal(t, stomp.CommandSubscribe, f.Command)
	assert.Equal(t, "/topic/quiet", f.Header(stomp.HeaderDestination))
	assert.Len(t, client.SubscriptionIDs("/topic/quiet"), 2)

	// The resubscribed topic gets a fresh window.
	assert.Empty(t, client.CheckSubscriptions())
}

func TestClientCapturesFrames(t *testing.T) {
	capture := &captureLog{}
	client, _, p := connectClient(t, WithProtocolLogger(capture))

	require.NoError(t, client.Subscribe("/topic/a", nil))
	p.next()

	assert.Equal(t, []string{stomp.CommandConnect, stomp.CommandSubscribe}, capture.frames(log.DirectionOut))
	assert.Equal(t, []string{stomp.CommandConnected}, capture.frames(log.DirectionIn))
}

func TestFrameError(t *testing.T) {
	assert.Equal(t, "stomp error: bad", (&FrameError{Message: "bad"}).Error())
	assert.Equal(t, "stomp error: bad: body", (&FrameError{Message: "bad", Body: "body"}).Error())
}

func TestSensorURL(t *testing.T) {
	assert.Equal(t, "ws://192.168.0.10:8080/ws/sensor", SensorURL("192.168.0.10", 8080))
	assert.Equal(t, "ws://[fe80::1]:8080/ws/sensor", SensorURL("fe80::1", 8080))
}
