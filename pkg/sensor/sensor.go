// Package sensor models the sensor roster and decodes reading payloads.
package sensor

import (
	"fmt"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
)

// Kind distinguishes single-gas LEL sensors from composite sensors.
type Kind uint8

const (
	// KindComposite reports CO, O2, H2S and CO2.
	KindComposite Kind = iota

	// KindLEL reports the lower explosive limit.
	KindLEL
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindLEL {
		return "lel"
	}
	return "composite"
}

// Descriptor describes one sensor from the roster.
type Descriptor struct {
	Port        string
	Model       string
	Serial      string
	DisplayName string
}

// ID is the identity key, "<model>_<port>".
func (d Descriptor) ID() string {
	return d.Model + "_" + d.Port
}

// Topic is the STOMP destination the sensor publishes to.
func (d Descriptor) Topic() string {
	return fmt.Sprintf("/topic/sensor/%s/%s/%s", d.Model, d.Port, d.Serial)
}

// GasType is derived from the model name.
func (d Descriptor) GasType() gas.Type {
	return gas.TypeFromModel(d.Model)
}

// Kind reports whether the sensor is an LEL or a composite sensor.
func (d Descriptor) Kind() Kind {
	if d.GasType() == gas.LEL {
		return KindLEL
	}
	return KindComposite
}

// Gases returns the gases the sensor reports.
func (d Descriptor) Gases() []gas.Type {
	if d.Kind() == KindLEL {
		return []gas.Type{gas.LEL}
	}
	return gas.CompositeGases
}

// Label is the human-readable name: the display name if set, else
// "<model> (<port>)".
func (d Descriptor) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return fmt.Sprintf("%s (%s)", d.Model, d.Port)
}

// DefaultName is the name given to an unnamed sensor at roster position
// index.
func DefaultName(index int) string {
	return fmt.Sprintf("Sensor %d", index+1)
}
