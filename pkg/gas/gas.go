// Package gas classifies gas concentrations against per-gas thresholds.
//
// Four gases (CO, H2S, CO2, LEL) are symmetric: a single upper danger
// bound above a warning band. O2 is asymmetric: both too little and too
// much oxygen are dangerous, with a warning band on each side of the
// normal range.
package gas

import (
	"strconv"
	"strings"
)

// Type is a gas type tag.
type Type string

// Known gas types.
const (
	CO      Type = "CO"
	O2      Type = "O2"
	H2S     Type = "H2S"
	CO2     Type = "CO2"
	LEL     Type = "LEL"
	Unknown Type = "UNKNOWN"
)

// CompositeGases are the gases reported by a composite sensor, in display
// order.
var CompositeGases = []Type{CO, O2, H2S, CO2}

// AllGases lists every known gas type.
var AllGases = []Type{CO, O2, H2S, CO2, LEL}

// NoValue is the sentinel for a missing reading.
const NoValue = "--"

// TypeFromModel derives the gas type from a sensor model name. The order
// matters: "CO2" contains "CO" and "O2".
func TypeFromModel(model string) Type {
	switch {
	case strings.Contains(model, "LEL"):
		return LEL
	case strings.Contains(model, "CO2"):
		return CO2
	case strings.Contains(model, "CO"):
		return CO
	case strings.Contains(model, "O2"):
		return O2
	case strings.Contains(model, "H2S"):
		return H2S
	default:
		return Unknown
	}
}

// ParseType parses a gas tag case-insensitively.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, g := range AllGases {
		if g == t {
			return t, true
		}
	}
	return Unknown, false
}

// Asymmetric reports whether t has a two-sided danger range.
func (t Type) Asymmetric() bool {
	return t == O2
}

// DisplayName returns the gas name with subscripts.
func (t Type) DisplayName() string {
	switch t {
	case CO2:
		return "CO₂"
	case H2S:
		return "H₂S"
	case O2:
		return "O₂"
	default:
		return string(t)
	}
}

// Status is the classification of one reading.
type Status uint8

const (
	// StatusNormal is a reading inside the normal band.
	StatusNormal Status = iota

	// StatusWarning is a reading outside the normal band but not dangerous.
	StatusWarning

	// StatusDanger is a reading beyond a danger bound.
	StatusDanger

	// StatusError means the reading could not be classified.
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusWarning:
		return "warning"
	case StatusDanger:
		return "danger"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Severity orders normal < warning < danger. Error has no severity.
func (s Status) Severity() int {
	switch s {
	case StatusNormal:
		return 0
	case StatusWarning:
		return 1
	case StatusDanger:
		return 2
	default:
		return -1
	}
}

var gasIDNames = map[int]string{
	0:   "none",
	1:   "hydrogen",
	2:   "hydrogen mixture",
	3:   "methane",
	4:   "light gas",
	5:   "medium-density gas",
	6:   "heavy gas",
	253: "unknown gas",
	254: "below range",
	255: "above range",
}

// GasIDName names the gas detected by an LEL sensor.
func GasIDName(id string) string {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return "unknown id " + id
	}
	if name, ok := gasIDNames[n]; ok {
		return name
	}
	return "unknown id " + id
}
