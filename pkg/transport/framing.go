package transport

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/gaswatch/gaswatch-go/pkg/log"
	"github.com/gaswatch/gaswatch-go/pkg/stomp"
)

// writeFrame encodes f and writes it as one text message.
func (c *Client) writeFrame(sess *session, f stomp.Frame) error {
	data := stomp.Encode(f)
	if err := c.write(sess, websocket.TextMessage, data); err != nil {
		c.captureError(sess, log.LayerTransport, err, "write "+f.Command)
		return err
	}
	c.metrics.FrameSent(f.Command)
	c.captureFrame(sess, log.DirectionOut, f, len(data))
	return nil
}

// writeHeartbeat sends a bare EOL.
func (c *Client) writeHeartbeat(sess *session) error {
	if err := c.write(sess, websocket.TextMessage, stomp.Heartbeat()); err != nil {
		return err
	}
	c.metrics.HeartbeatSent()
	c.captureControl(sess, log.DirectionOut, log.ControlHeartbeat, nil, "")
	return nil
}

// writeClose sends a WebSocket close message. Errors are ignored; the
// connection is closed right after either way.
func (c *Client) writeClose(sess *session, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.write(sess, websocket.CloseMessage, msg); err == nil {
		cc := code
		c.captureControl(sess, log.DirectionOut, log.ControlClose, &cc, reason)
	}
}

func (c *Client) write(sess *session, messageType int, data []byte) error {
	if sess == nil {
		return ErrNotConnected
	}
	if sess.ctx.Err() != nil {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return sess.conn.WriteMessage(messageType, data)
}

func (c *Client) captureFrame(sess *session, dir log.Direction, f stomp.Frame, size int) {
	c.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sess.id,
		Direction:    dir,
		Layer:        log.LayerFrame,
		Category:     log.CategoryMessage,
		RemoteAddr:   sess.address,
		Destination:  f.Header(stomp.HeaderDestination),
		Frame:        log.NewFrameEvent(f.Command, f.Headers, f.Body, size),
	})
}

func (c *Client) captureControl(sess *session, dir log.Direction, typ log.ControlType, code *int, reason string) {
	c.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sess.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		RemoteAddr:   sess.address,
		Control: &log.ControlEvent{
			Type:      typ,
			CloseCode: code,
			Reason:    reason,
		},
	})
}

func (c *Client) captureError(sess *session, layer log.Layer, err error, context string) {
	c.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sess.id,
		Direction:    log.DirectionIn,
		Layer:        layer,
		Category:     log.CategoryError,
		RemoteAddr:   sess.address,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}

func (c *Client) captureState(connID string, old, new State, reason string) {
	c.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: new.String(),
			Reason:   reason,
		},
	})
}
