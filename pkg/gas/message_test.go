package gas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageLevel(t *testing.T) {
	store := NewStore()

	tests := []struct {
		name    string
		message string
		want    Status
	}{
		{"Empty", "", StatusNormal},
		{"Blank", "   ", StatusNormal},
		{"COConcentrationDanger", "CO 250 ppm detected", StatusDanger},
		{"COConcentrationWarning", "CO at 150PPM", StatusWarning},
		{"CO2BeforeCO", "CO₂ 1800ppm", StatusWarning},
		{"CO2Ascii", "CO2 6000 ppm", StatusDanger},
		{"H2S", "H2S 60ppm", StatusDanger},
		{"O2Percent", "O₂ 18.0%", StatusDanger},
		{"LELPercent", "LEL 12%", StatusWarning},
		{"ConcentrationMarker", "LEL 농도 30 초과", StatusDanger},
		// A normal concentration falls through to the keywords.
		{"NormalConcentrationKeyword", "DANGER: CO 10 ppm", StatusDanger},
		{"NormalConcentrationNoKeyword", "CO 10 ppm", StatusWarning},
		// Concentration wins over keywords.
		{"ConcentrationBeatsKeyword", "LOW battery CO 250 ppm", StatusDanger},
		{"DangerKeyword", "sensor CRITICAL", StatusDanger},
		{"HighKeyword", "level high", StatusDanger},
		{"KoreanDanger", "위험 상태", StatusDanger},
		{"ErrorKeyword", "error reading", StatusDanger},
		{"WarnKeyword", "warn: drift", StatusWarning},
		{"KoreanWarning", "주의 필요", StatusWarning},
		{"Unrecognized", "maintenance due", StatusWarning},
		{"GasWithoutNumber", "CO sensor fault", StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageLevel("S1", tt.message, store))
		})
	}
}

func TestMessageLevelUsesSensorOverride(t *testing.T) {
	store := NewStore()
	strict := Threshold{NormalMin: 0, NormalMax: 5, WarningMin: 5, WarningMax: 10, DangerMin: 10, Unit: "ppm"}
	assert.NoError(t, store.SetOverrides("S1", map[Type]Threshold{CO: strict}))

	assert.Equal(t, StatusDanger, MessageLevel("S1", "CO 20 ppm", store))
	assert.Equal(t, StatusWarning, MessageLevel("S2", "CO 20 ppm", store))
}

type resolverFunc func(sensorID string, g Type) (Threshold, error)

func (f resolverFunc) Resolve(sensorID string, g Type) (Threshold, error) { return f(sensorID, g) }

func TestMessageLevelWithoutThreshold(t *testing.T) {
	missing := resolverFunc(func(string, Type) (Threshold, error) { return Threshold{}, ErrNoThreshold })

	// A gas and concentration without a threshold is an error, even when
	// the message also carries a keyword.
	assert.Equal(t, StatusError, MessageLevel("S1", "DANGER CO 1 ppm", missing))
	assert.Equal(t, StatusError, MessageLevel("S1", "CO 250 ppm", nil))

	// Keyword-only messages need no threshold.
	assert.Equal(t, StatusDanger, MessageLevel("S1", "sensor CRITICAL", nil))
	assert.Equal(t, StatusWarning, MessageLevel("S1", "CO sensor fault", missing))
}
