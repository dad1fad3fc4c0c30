// Package preferences persists operator preferences: sensor display names,
// per-sensor threshold overrides and the alarm master switch.
package preferences

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

// DocumentVersion is the current version of the preference document.
const DocumentVersion = 1

// Document is the persisted preference set.
type Document struct {
	// Version is the document format version.
	Version int `json:"version"`

	// SavedAt is when the document was last saved.
	SavedAt time.Time `json:"saved_at"`

	// DisplayNames maps sensor serial numbers to operator-given names.
	DisplayNames map[string]string `json:"display_names,omitempty"`

	// Thresholds holds threshold overrides by sensor id.
	Thresholds map[string]map[gas.Type]gas.Threshold `json:"thresholds,omitempty"`

	// AlarmMasterEnabled is the lamp master switch. Nil means enabled.
	AlarmMasterEnabled *bool `json:"alarm_master_enabled,omitempty"`
}

// New returns an empty document.
func New() *Document {
	return &Document{
		Version:      DocumentVersion,
		DisplayNames: make(map[string]string),
		Thresholds:   make(map[string]map[gas.Type]gas.Threshold),
	}
}

// MasterEnabled returns the master switch, defaulting to true.
func (d *Document) MasterEnabled() bool {
	if d == nil || d.AlarmMasterEnabled == nil {
		return true
	}
	return *d.AlarmMasterEnabled
}

// SetMasterEnabled records the master switch.
func (d *Document) SetMasterEnabled(enabled bool) {
	d.AlarmMasterEnabled = &enabled
}

// DisplayName returns the name stored for a serial.
func (d *Document) DisplayName(serial string) (string, bool) {
	if d == nil {
		return "", false
	}
	name, ok := d.DisplayNames[serial]
	return name, ok
}

// SetDisplayName stores a name for a serial.
func (d *Document) SetDisplayName(serial, name string) {
	if d.DisplayNames == nil {
		d.DisplayNames = make(map[string]string)
	}
	d.DisplayNames[serial] = name
}

// Store loads and saves a Document.
type Store interface {
	// Load returns nil, nil when nothing was saved yet.
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Clear(ctx context.Context) error
}

func encode(doc *Document) ([]byte, error) {
	doc.Version = DocumentVersion
	if doc.SavedAt.IsZero() {
		doc.SavedAt = time.Now()
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decode(data []byte) (*Document, error) {
	doc := New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyNames sets each roster entry's display name from the document.
// Unnamed sensors get sensor.DefaultName for their position, and that name
// is recorded; changed reports whether the document needs saving.
func (d *Document) ApplyNames(roster []sensor.Descriptor) (named []sensor.Descriptor, changed bool) {
	named = make([]sensor.Descriptor, len(roster))
	for i, s := range roster {
		name, ok := d.DisplayName(s.Serial)
		if !ok || name == "" {
			name = sensor.DefaultName(i)
			d.SetDisplayName(s.Serial, name)
			changed = true
		}
		s.DisplayName = name
		named[i] = s
	}
	return named, changed
}
