package gas

import (
	"regexp"
	"strconv"
	"strings"
)

// leadingNumber matches the numeric prefix of a reading such as "12.5ppm".
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseValue parses the leading number of raw. The "--" sentinel, empty
// strings and text without a numeric prefix do not parse.
func ParseValue(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == NoValue {
		return 0, false
	}
	m := leadingNumber.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Classify classifies a raw reading. A nil threshold, the "--" sentinel or
// a non-numeric value yields StatusError.
func Classify(gas Type, raw string, th *Threshold) Status {
	if th == nil {
		return StatusError
	}
	v, ok := ParseValue(raw)
	if !ok {
		return StatusError
	}
	return ClassifyValue(gas, v, *th)
}

// ClassifyValue classifies a numeric reading.
func ClassifyValue(gas Type, v float64, th Threshold) Status {
	if v >= th.NormalMin && v <= th.NormalMax {
		return StatusNormal
	}

	if gas.Asymmetric() {
		switch {
		case v < th.DangerMin || v > th.DangerMax:
			return StatusDanger
		case v >= th.DangerMin && v < th.NormalMin:
			return StatusWarning
		case v > th.NormalMax && v <= th.DangerMax:
			return StatusWarning
		default:
			return StatusNormal
		}
	}

	if v > th.DangerMin {
		return StatusDanger
	}
	if v > th.WarningMin && v <= th.WarningMax {
		return StatusWarning
	}
	// Outside the normal band but in no documented band. Never normal.
	return StatusWarning
}

// ResolveAndClassify classifies raw with the threshold r resolves for the
// sensor.
func ResolveAndClassify(r Resolver, sensorID string, gas Type, raw string) Status {
	th, err := r.Resolve(sensorID, gas)
	if err != nil {
		return StatusError
	}
	return Classify(gas, raw, &th)
}

// DisplayValue returns the value to show for a reading. LEL is capped at
// 100; classification always uses the raw value.
func DisplayValue(gas Type, raw string) string {
	if gas != LEL {
		return raw
	}
	if v, ok := ParseValue(raw); ok && v > 100 {
		return "100.0"
	}
	return raw
}
