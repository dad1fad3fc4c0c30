package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognizedRoster is returned when a roster response matches none of
// the known envelope shapes.
var ErrUnrecognizedRoster = errors.New("unrecognized roster response")

// Entry is one roster item as sent by the server.
type Entry struct {
	PortName     string `json:"portName"`
	ModelName    string `json:"modelName"`
	SerialNumber string `json:"serialNumber"`
}

// DecodeRoster extracts the sensor list from a roster response. Shapes are
// tried in order: {"data":{"sensors":[...]}}, {"data":[...]}, [...].
// Entries whose model contains "error" are dropped.
func DecodeRoster(body []byte) ([]Descriptor, error) {
	entries, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.ModelName), "error") {
			continue
		}
		out = append(out, Descriptor{
			Port:   e.PortName,
			Model:  e.ModelName,
			Serial: e.SerialNumber,
		})
	}
	return out, nil
}

func decodeEnvelope(body []byte) ([]Entry, error) {
	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedRoster, err)
	}

	if _, ok := top.([]any); ok {
		var entries []Entry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedRoster, err)
		}
		return entries, nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Data) == 0 {
		return nil, ErrUnrecognizedRoster
	}

	var nested struct {
		Sensors []Entry `json:"sensors"`
	}
	if err := json.Unmarshal(env.Data, &nested); err == nil && nested.Sensors != nil {
		return nested.Sensors, nil
	}

	var list []Entry
	if err := json.Unmarshal(env.Data, &list); err == nil && list != nil {
		return list, nil
	}

	return nil, ErrUnrecognizedRoster
}

// Diff is the change between two rosters by identity key.
type Diff struct {
	Added   []Descriptor
	Removed []Descriptor
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffRosters compares old and new by identity key. Order follows the
// input rosters.
func DiffRosters(old, new []Descriptor) Diff {
	oldIDs := make(map[string]bool, len(old))
	for _, d := range old {
		oldIDs[d.ID()] = true
	}
	newIDs := make(map[string]bool, len(new))
	for _, d := range new {
		newIDs[d.ID()] = true
	}

	var diff Diff
	for _, d := range new {
		if !oldIDs[d.ID()] {
			diff.Added = append(diff.Added, d)
		}
	}
	for _, d := range old {
		if !newIDs[d.ID()] {
			diff.Removed = append(diff.Removed, d)
		}
	}
	return diff
}
