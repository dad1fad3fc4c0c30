package gas

import (
	"regexp"
	"strconv"
	"strings"
)

// Concentration patterns, tried in order: "N ppm", a concentration marker
// followed by a number, "N %".
var concentrationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*ppm`),
	regexp.MustCompile(`농도.*?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`),
}

var (
	dangerKeywords  = []string{"DANGER", "CRITICAL", "HIGH", "위험", "ERROR"}
	warningKeywords = []string{"WARNING", "WARN", "LOW", "경고", "주의"}
)

// MessageLevel classifies a free-text alarm message. A message naming a
// gas and a concentration is classified numerically against the sensor's
// threshold; that result wins unless it is normal. Otherwise
// keywords decide, and an unrecognized message is a warning.
func MessageLevel(sensorID, message string, r Resolver) Status {
	if strings.TrimSpace(message) == "" {
		return StatusNormal
	}

	if st, ok := concentrationLevel(sensorID, message, r); ok {
		return st
	}

	upper := strings.ToUpper(message)
	switch {
	case containsAny(upper, dangerKeywords):
		return StatusDanger
	case containsAny(upper, warningKeywords):
		return StatusWarning
	default:
		return StatusWarning
	}
}

// concentrationLevel classifies the gas and concentration named in a
// message. Any result other than normal is final, error included: a message
// that names a gas without a usable threshold is an error, not a keyword
// match.
func concentrationLevel(sensorID, message string, r Resolver) (Status, bool) {
	gas, ok := messageGas(message)
	if !ok {
		return StatusNormal, false
	}
	v, ok := messageConcentration(message)
	if !ok {
		return StatusNormal, false
	}
	if r == nil {
		return StatusError, true
	}
	th, err := r.Resolve(sensorID, gas)
	if err != nil {
		return StatusError, true
	}
	st := ClassifyValue(gas, v, th)
	return st, st != StatusNormal
}

// messageGas finds the gas tag in an alarm message. CO2 is checked before
// CO because one contains the other.
func messageGas(message string) (Type, bool) {
	switch {
	case strings.Contains(message, "CO₂") || strings.Contains(message, "CO2"):
		return CO2, true
	case strings.Contains(message, "CO"):
		return CO, true
	case strings.Contains(message, "H₂S") || strings.Contains(message, "H2S"):
		return H2S, true
	case strings.Contains(message, "O₂") || strings.Contains(message, "O2"):
		return O2, true
	case strings.Contains(message, "LEL"):
		return LEL, true
	default:
		return Unknown, false
	}
}

func messageConcentration(message string) (float64, bool) {
	for _, re := range concentrationPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
