package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

var strictCO = map[gas.Type]gas.Threshold{
	gas.CO: {NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 20, DangerMin: 20, Unit: "ppm"},
}

func TestSetThresholds(t *testing.T) {
	h := newHarness(t, []sensor.Descriptor{coSensor}, nil)
	h.start()
	h.establish()
	ctx := context.Background()

	require.True(t, h.tr.deliver(coSensor.Topic(), `{"co":25,"o2":20.9,"h2s":0,"co2":400}`))
	require.True(t, h.status().Verdict.Safe())

	t.Run("unknown sensor", func(t *testing.T) {
		err := h.m.SetThresholds(ctx, "ASG-CO_COM9", strictCO)
		assert.ErrorIs(t, err, ErrUnknownSensor)
	})

	t.Run("invalid set is rejected whole", func(t *testing.T) {
		err := h.m.SetThresholds(ctx, coSensor.ID(), map[gas.Type]gas.Threshold{
			gas.CO:  {NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 20, DangerMin: 20},
			gas.H2S: {NormalMin: 10, NormalMax: 5},
		})
		var verr *gas.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Empty(t, h.m.thresholds.Overrides())
	})

	t.Run("valid set reclassifies and persists", func(t *testing.T) {
		require.NoError(t, h.m.SetThresholds(ctx, coSensor.ID(), strictCO))

		st := h.status()
		assert.True(t, st.Verdict.Dangerous)
		assert.Equal(t, gas.StatusDanger, st.Sensors[0].Statuses[gas.CO])
		assert.True(t, st.Lamp.LampOn)

		doc := h.loadPrefs()
		assert.Equal(t, strictCO, doc.Thresholds[coSensor.ID()])
	})

	t.Run("clear restores defaults", func(t *testing.T) {
		require.NoError(t, h.m.ClearThresholds(ctx, coSensor.ID()))

		st := h.status()
		assert.False(t, st.Verdict.Dangerous)
		assert.Equal(t, gas.StatusNormal, st.Sensors[0].Statuses[gas.CO])
		assert.NotContains(t, h.loadPrefs().Thresholds, coSensor.ID())
	})
}

func TestRenameSensor(t *testing.T) {
	h := newHarness(t, []sensor.Descriptor{coSensor}, nil)
	h.start()
	ctx := context.Background()

	assert.ErrorIs(t, h.m.RenameSensor(ctx, coSensor.Serial, "  "), ErrEmptyName)
	assert.ErrorIs(t, h.m.RenameSensor(ctx, "999", "Boiler"), ErrUnknownSensor)

	require.NoError(t, h.m.RenameSensor(ctx, coSensor.Serial, " Boiler room "))
	st := h.status()
	assert.Equal(t, "Boiler room", st.Sensors[0].Sensor.Label())
	assert.Equal(t, "Boiler room", h.loadPrefs().DisplayNames[coSensor.Serial])
}

func TestSetMasterPersists(t *testing.T) {
	h := newHarness(t, []sensor.Descriptor{coSensor}, nil)
	h.start()
	h.establish()
	ctx := context.Background()

	require.NoError(t, h.m.SetMaster(ctx, false))
	assert.False(t, h.status().Lamp.MasterEnabled)
	assert.False(t, h.loadPrefs().MasterEnabled())

	// Danger with the master switch off leaves the lamp dark.
	require.True(t, h.tr.deliver(coSensor.Topic(), `{"co":250,"o2":20.9,"h2s":0,"co2":400}`))
	st := h.status()
	assert.True(t, st.Verdict.Dangerous)
	assert.False(t, st.Lamp.LampOn)

	require.NoError(t, h.m.SetMaster(ctx, true))
	assert.True(t, h.loadPrefs().MasterEnabled())
}

func TestSetLampManual(t *testing.T) {
	h := newHarness(t, []sensor.Descriptor{coSensor}, nil)
	h.start()
	h.establish()
	ctx := context.Background()

	require.NoError(t, h.m.SetLamp(ctx, true))
	assert.True(t, h.status().Lamp.LampOn)

	require.NoError(t, h.m.SetLamp(ctx, false))
	require.NoError(t, h.m.SetLamp(ctx, false))
	st := h.status()
	assert.False(t, st.Lamp.LampOn)
	assert.True(t, st.Lamp.ManuallyDisabled)

	// A manual off suppresses automatic control.
	require.True(t, h.tr.deliver(coSensor.Topic(), `{"co":250,"o2":20.9,"h2s":0,"co2":400}`))
	assert.False(t, h.status().Lamp.LampOn)

	assert.Eventually(t, func() bool {
		calls := h.lamp.get()
		return len(calls) == 2 && calls[0] && !calls[1]
	}, waitFor, tick)
	assert.True(t, h.events.has(EventLampChanged))
}

func TestReconnectCommand(t *testing.T) {
	h := newHarness(t, []sensor.Descriptor{coSensor}, nil)
	h.start()
	h.establish()

	require.True(t, h.tr.deliver(coSensor.Topic(), `{"co":50,"o2":20.9,"h2s":0,"co2":400}`))
	require.True(t, h.status().Sensors[0].HasReading)

	require.NoError(t, h.m.Reconnect(context.Background()))
	h.waitConnect()

	st := h.status()
	assert.Equal(t, 2, h.tr.connectCount())
	require.Len(t, st.Sensors, 1)
	assert.False(t, st.Sensors[0].HasReading, "a resync drops readings")
}

func TestCommandsBeforeStart(t *testing.T) {
	h := newHarness(t, []sensor.Descriptor{coSensor}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, h.m.Reconnect(ctx), ErrNotStarted)
	assert.ErrorIs(t, h.m.SetLamp(ctx, true), ErrNotStarted)
	assert.ErrorIs(t, h.m.SetMaster(ctx, true), ErrNotStarted)
	assert.ErrorIs(t, h.m.RenameSensor(ctx, coSensor.Serial, "x"), ErrNotStarted)
	_, err := h.m.Status(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
}
