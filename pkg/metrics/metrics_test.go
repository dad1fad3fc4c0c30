package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.FrameSent("SUBSCRIBE")
	m.FrameReceived("MESSAGE")
	m.ParseError()
	m.HeartbeatSent()
	m.SetConnectionState(2)
	m.ReconnectScheduled()
	m.Resync("health")
	m.Resubscribed()
	m.Reading("normal")
	m.SetSensors(2, 1)
	m.SetTracked(2)
	m.SetDangerous(true)
	m.SetLamp(true)
	m.ActuatorCall("on", nil)
	m.SetFansOn(1)
	assert.Nil(t, New(nil))
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.FrameReceived("MESSAGE")
	m.FrameReceived("MESSAGE")
	m.FrameSent("SUBSCRIBE")
	m.Resync("health")
	m.ActuatorCall("on", errors.New("timeout"))
	m.SetDangerous(true)
	m.SetLamp(false)
	m.SetSensors(4, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("in", "MESSAGE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("out", "SUBSCRIBE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resyncsTotal.WithLabelValues("health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actuatorCalls.WithLabelValues("on", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.siteDangerous))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lampOn))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.trackedSensors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.staleSensors))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
