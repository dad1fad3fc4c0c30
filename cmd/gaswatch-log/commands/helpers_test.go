package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gaswatch/gaswatch-go/pkg/log"
)

const (
	connA   = "aaaaaaaa-1111-2222-3333-444444444444"
	connB   = "bbbbbbbb-1111-2222-3333-444444444444"
	coTopic = "/topic/sensor/ASG-CO/COM1/100"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

// sampleEvents is one short session followed by the start of a second.
func sampleEvents() []log.Event {
	return []log.Event{
		{
			Timestamp: base, ConnectionID: connA, Direction: log.DirectionOut,
			Layer: log.LayerFrame, Category: log.CategoryMessage, RemoteAddr: "ws://gas:8081/ws/sensor",
			Frame: log.NewFrameEvent("CONNECT", map[string]string{"accept-version": "1.2"}, "", 60),
		},
		{
			Timestamp: base.Add(50 * time.Millisecond), ConnectionID: connA, Direction: log.DirectionIn,
			Layer: log.LayerFrame, Category: log.CategoryMessage,
			Frame: log.NewFrameEvent("CONNECTED", map[string]string{"version": "1.2"}, "", 40),
		},
		{
			Timestamp: base.Add(60 * time.Millisecond), ConnectionID: connA, Direction: log.DirectionOut,
			Layer: log.LayerFrame, Category: log.CategoryMessage, Destination: coTopic,
			Frame: log.NewFrameEvent("SUBSCRIBE", map[string]string{"id": "sub-1", "destination": coTopic}, "", 80),
		},
		{
			Timestamp: base.Add(time.Second), ConnectionID: connA, Direction: log.DirectionIn,
			Layer: log.LayerFrame, Category: log.CategoryMessage, Destination: coTopic,
			Frame: log.NewFrameEvent("MESSAGE", map[string]string{"subscription": "sub-1", "destination": coTopic}, `{"co":12}`, 120),
		},
		{
			Timestamp: base.Add(15 * time.Second), ConnectionID: connA, Direction: log.DirectionOut,
			Layer: log.LayerTransport, Category: log.CategoryControl,
			Control: &log.ControlEvent{Type: log.ControlHeartbeat},
		},
		{
			Timestamp: base.Add(20 * time.Second), ConnectionID: connA, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryControl,
			Control: &log.ControlEvent{Type: log.ControlClose, CloseCode: intPtr(1006), Reason: "sensors silent"},
		},
		{
			Timestamp: base.Add(20 * time.Second), ConnectionID: connA, Direction: log.DirectionIn,
			Layer: log.LayerService, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "CONNECTED", NewState: "RECONNECTING", Reason: "sensors silent"},
		},
		{
			Timestamp: base.Add(25 * time.Second), ConnectionID: connB, Direction: log.DirectionIn,
			Layer: log.LayerFrame, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerFrame, Message: "invalid command", Context: "decode"},
		},
	}
}

// writeCapture writes events to a capture file and returns its path.
func writeCapture(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.cbor")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("create capture: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close capture: %v", err)
	}
	return path
}
