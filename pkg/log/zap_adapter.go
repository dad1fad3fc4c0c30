package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger writes capture events to a zap logger at debug level.
// Useful during development to see the frame trace on the console.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates a ZapLogger. A nil logger discards events.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("protocol")}
}

// Log writes the event.
func (a *ZapLogger) Log(event Event) {
	if ce := a.logger.Check(zapcore.DebugLevel, "protocol"); ce != nil {
		ce.Write(eventFields(event)...)
	}
}

func eventFields(event Event) []zap.Field {
	fields := []zap.Field{
		zap.String("conn_id", event.ConnectionID),
		zap.String("direction", event.Direction.String()),
		zap.String("layer", event.Layer.String()),
		zap.String("category", event.Category.String()),
	}
	if event.Destination != "" {
		fields = append(fields, zap.String("destination", event.Destination))
	}

	switch {
	case event.Frame != nil:
		fields = append(fields,
			zap.String("command", event.Frame.Command),
			zap.Int("frame_size", event.Frame.Size),
		)
		if event.Frame.Truncated {
			fields = append(fields, zap.Bool("truncated", true))
		}
	case event.StateChange != nil:
		fields = append(fields,
			zap.String("entity", event.StateChange.Entity.String()),
			zap.String("old_state", event.StateChange.OldState),
			zap.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			fields = append(fields, zap.String("reason", event.StateChange.Reason))
		}
	case event.Control != nil:
		fields = append(fields, zap.String("ctrl_type", event.Control.Type.String()))
		if event.Control.CloseCode != nil {
			fields = append(fields, zap.Int("close_code", *event.Control.CloseCode))
		}
	case event.Error != nil:
		fields = append(fields,
			zap.String("error_layer", event.Error.Layer.String()),
			zap.String("error_msg", event.Error.Message),
			zap.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			fields = append(fields, zap.Int("error_code", *event.Error.Code))
		}
	}
	return fields
}

// Compile-time interface satisfaction check.
var _ Logger = (*ZapLogger)(nil)
