package gas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThresholdsAreValid(t *testing.T) {
	for g, th := range DefaultThresholds() {
		assert.Empty(t, Validate(g, th), g)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		gas      Type
		th       Threshold
		problems int
	}{
		{"Valid", CO, Threshold{NormalMin: 0, NormalMax: 20, WarningMin: 20, WarningMax: 100, DangerMin: 100}, 0},
		{"NormalInverted", CO, Threshold{NormalMin: 30, NormalMax: 30, WarningMin: 30, WarningMax: 100, DangerMin: 100}, 1},
		{"WarningInverted", H2S, Threshold{NormalMin: 0, NormalMax: 5, WarningMin: 50, WarningMax: 10, DangerMin: 60}, 1},
		{"WarningBelowNormal", CO2, Threshold{NormalMin: 0, NormalMax: 1500, WarningMin: 1000, WarningMax: 5000, DangerMin: 5000}, 1},
		{"DangerBelowWarning", LEL, Threshold{NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 25, DangerMin: 20}, 1},
		{"O2Valid", O2, Threshold{NormalMin: 19, NormalMax: 23, DangerMin: 18, DangerMax: 24}, 0},
		{"O2LowerDanger", O2, Threshold{NormalMin: 20, NormalMax: 22, DangerMin: 20, DangerMax: 23.5}, 1},
		{"O2UpperDanger", O2, Threshold{NormalMin: 20, NormalMax: 22, DangerMin: 19.5, DangerMax: 21}, 1},
		{"O2AllBroken", O2, Threshold{NormalMin: 22, NormalMax: 20, DangerMin: 23, DangerMax: 19}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Validate(tt.gas, tt.th), tt.problems)
		})
	}
}

func TestStoreResolvePrecedence(t *testing.T) {
	s := NewStore()

	th, err := s.Resolve("ASG-CO_COM3", CO)
	require.NoError(t, err)
	assert.Equal(t, 30.0, th.NormalMax)

	override := Threshold{NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 50, DangerMin: 50, Unit: "ppm"}
	require.NoError(t, s.SetOverrides("ASG-CO_COM3", map[Type]Threshold{CO: override}))

	th, err = s.Resolve("ASG-CO_COM3", CO)
	require.NoError(t, err)
	assert.Equal(t, override, th)

	// Other sensors and gases still use the defaults.
	th, _ = s.Resolve("ASG-CO_COM4", CO)
	assert.Equal(t, 30.0, th.NormalMax)
	th, _ = s.Resolve("ASG-CO_COM3", H2S)
	assert.Equal(t, 5.0, th.NormalMax)

	_, err = s.Resolve("ASG-CO_COM3", Unknown)
	assert.ErrorIs(t, err, ErrNoThreshold)

	s.ClearOverrides("ASG-CO_COM3")
	th, _ = s.Resolve("ASG-CO_COM3", CO)
	assert.Equal(t, 30.0, th.NormalMax)
}

func TestStoreSetOverridesAllOrNothing(t *testing.T) {
	s := NewStore()
	good := Threshold{NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 50, DangerMin: 50, Unit: "ppm"}
	bad := Threshold{NormalMin: 20, NormalMax: 22, DangerMin: 21, DangerMax: 23.5, Unit: "%"}

	err := s.SetOverrides("MULTI_COM1", map[Type]Threshold{CO: good, O2: bad})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "MULTI_COM1", verr.SensorID)
	assert.Len(t, verr.Problems, 1)
	assert.Contains(t, err.Error(), "MULTI_COM1")

	// Nothing was written, not even the valid CO entry.
	assert.Empty(t, s.Overrides())
	th, _ := s.Resolve("MULTI_COM1", CO)
	assert.Equal(t, 30.0, th.NormalMax)
}

func TestStoreSetOverridesRejectsUnknownGas(t *testing.T) {
	s := NewStore()
	err := s.SetOverrides("X", map[Type]Threshold{"NH3": {NormalMin: 0, NormalMax: 1}})
	assert.Error(t, err)
}

func TestStoreOverridesIsCopy(t *testing.T) {
	s := NewStore()
	good := Threshold{NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 50, DangerMin: 50, Unit: "ppm"}
	require.NoError(t, s.SetOverrides("A", map[Type]Threshold{CO: good}))

	snap := s.Overrides()
	snap["A"][CO] = Threshold{}
	delete(snap, "A")

	th, _ := s.Resolve("A", CO)
	assert.Equal(t, good, th)
}

func TestStoreLoadOverridesSkipsInvalid(t *testing.T) {
	s := NewStore()
	good := Threshold{NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 50, DangerMin: 50, Unit: "ppm"}
	bad := Threshold{NormalMin: 10, NormalMax: 0}

	err := s.LoadOverrides(map[string]map[Type]Threshold{
		"A": {CO: good},
		"B": {CO: bad},
	})
	assert.Error(t, err)

	all := s.Overrides()
	assert.Contains(t, all, "A")
	assert.NotContains(t, all, "B")
}

func TestStoreSetDefaults(t *testing.T) {
	s := NewStore()
	co := Threshold{NormalMin: 0, NormalMax: 25, WarningMin: 25, WarningMax: 150, DangerMin: 150, Unit: "ppm"}
	require.NoError(t, s.SetDefaults(map[Type]Threshold{CO: co}))

	th, ok := s.Default(CO)
	assert.True(t, ok)
	assert.Equal(t, co, th)

	assert.Error(t, s.SetDefaults(map[Type]Threshold{CO: {NormalMin: 1, NormalMax: 0}}))
	th, _ = s.Default(CO)
	assert.Equal(t, co, th)
}
