package sensor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
)

// ErrEmptyPayload is returned for a blank message body.
var ErrEmptyPayload = errors.New("empty reading payload")

// Reading is one decoded message. Missing values hold gas.NoValue.
type Reading struct {
	Values map[gas.Type]string

	// LEL sensors only.
	Temperature string
	Humidity    string
	GasID       string

	// Advisory is the server's own alarm text, if any. It is never used
	// for classification.
	Advisory string
}

// Value returns the raw value for g, or gas.NoValue.
func (r Reading) Value(g gas.Type) string {
	if v, ok := r.Values[g]; ok {
		return v
	}
	return gas.NoValue
}

type alarmResult struct {
	AlarmLevel string   `json:"alarmLevel"`
	Messages   []string `json:"messages"`
}

// DecodeReading decodes a message body for a sensor of the given kind.
// Composite fields accept lower or upper case keys, preferring lower case.
// Values may be JSON numbers or strings.
func DecodeReading(kind Kind, body []byte) (Reading, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Reading{}, ErrEmptyPayload
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}

	r := Reading{Values: make(map[gas.Type]string)}
	if kind == KindLEL {
		r.Values[gas.LEL] = field(fields, "lel")
		r.Temperature = field(fields, "temperature")
		r.Humidity = field(fields, "humidity")
		r.GasID = field(fields, "gasId")
	} else {
		for _, g := range gas.CompositeGases {
			r.Values[g] = field(fields, strings.ToLower(string(g)), string(g))
		}
	}

	r.Advisory = advisory(fields)
	return r, nil
}

// field returns the first present, non-empty value among keys as text.
func field(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if v := scalarText(raw); v != "" {
			return v
		}
	}
	return gas.NoValue
}

// scalarText renders a JSON number or string as text. Other JSON values
// yield "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	default:
		return ""
	}
}

func advisory(fields map[string]json.RawMessage) string {
	if raw, ok := fields["alarmResult"]; ok {
		var ar alarmResult
		if err := json.Unmarshal(raw, &ar); err == nil {
			if ar.AlarmLevel == "" || ar.AlarmLevel == "NORMAL" {
				return ""
			}
			if len(ar.Messages) == 0 {
				return ar.AlarmLevel
			}
			return ar.AlarmLevel + ": " + strings.Join(ar.Messages, ", ")
		}
	}
	if raw, ok := fields["alarm"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
