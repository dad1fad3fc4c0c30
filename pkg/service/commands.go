package service

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
)

// Reconnect cancels any pending backoff and runs a full resync now. It also
// recovers from a permanent failure.
func (m *Monitor) Reconnect(ctx context.Context) error {
	var err error
	if derr := m.do(ctx, func() { err = m.manualResync(reasonManual) }); derr != nil {
		return derr
	}
	return err
}

// SetLamp switches the lamp by hand. Turning it off suppresses automatic
// control until it is turned on again.
func (m *Monitor) SetLamp(ctx context.Context, on bool) error {
	return m.do(ctx, func() {
		m.logger.Info("lamp switched by operator", zap.Bool("on", on))
		m.withLamp(func() { m.bridge.SetManual(on) })
	})
}

// SetMaster enables or disables automatic lamp control. The setting is
// persisted.
func (m *Monitor) SetMaster(ctx context.Context, enabled bool) error {
	return m.do(ctx, func() {
		m.logger.Info("alarm master switched by operator", zap.Bool("enabled", enabled))
		m.withLamp(func() { m.bridge.SetMaster(enabled) })
	})
}

// SetThresholds stores threshold overrides for a sensor. Either every entry
// is accepted or none is; a rejected set returns a *gas.ValidationError.
func (m *Monitor) SetThresholds(ctx context.Context, sensorID string, set map[gas.Type]gas.Threshold) error {
	var err error
	derr := m.do(ctx, func() {
		if _, ok := m.state.Sensor(sensorID); !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
			return
		}
		if err = m.thresholds.SetOverrides(sensorID, set); err != nil {
			return
		}
		m.logger.Info("threshold overrides stored", zap.String("sensor", sensorID), zap.Int("gases", len(set)))
		m.persistThresholds()
		m.evaluate()
	})
	if derr != nil {
		return derr
	}
	return err
}

// ClearThresholds drops every override of a sensor.
func (m *Monitor) ClearThresholds(ctx context.Context, sensorID string) error {
	return m.do(ctx, func() {
		m.thresholds.ClearOverrides(sensorID)
		m.logger.Info("threshold overrides cleared", zap.String("sensor", sensorID))
		m.persistThresholds()
		m.evaluate()
	})
}

func (m *Monitor) persistThresholds() {
	m.doc.Thresholds = m.thresholds.Overrides()
	m.savePreferences()
}

// RenameSensor sets the display name of the sensor with the given serial.
func (m *Monitor) RenameSensor(ctx context.Context, serial, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	var err error
	derr := m.do(ctx, func() {
		if !m.state.SetDisplayName(serial, name) {
			err = fmt.Errorf("%w: serial %s", ErrUnknownSensor, serial)
			return
		}
		m.doc.SetDisplayName(serial, name)
		m.savePreferences()
	})
	if derr != nil {
		return derr
	}
	return err
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	var st Status
	err := m.do(ctx, func() {
		st = Status{
			State:      m.State(),
			Session:    m.client.State(),
			Connection: m.reconnect.State(),
			Attempts:   m.reconnect.Attempts(),
			Verdict:    m.verdict,
			Lamp:       m.bridge.State(),
			Fans:       maps.Clone(m.fanStatus),
		}
		for _, d := range m.state.Roster() {
			ss := SensorStatus{
				Sensor:   d,
				Statuses: make(map[gas.Type]gas.Status),
				Alarm:    m.state.Alarm(d.ID()),
			}
			if r, ok := m.state.Reading(d.ID()); ok {
				ss.Reading, ss.HasReading = r, true
				if r.Advisory != "" {
					ss.Advisory = r.Advisory
					ss.AdvisoryLevel = m.engine.AdvisoryLevel(d.ID(), r)
				}
				for _, g := range d.Gases() {
					ss.Statuses[g] = gas.ResolveAndClassify(m.thresholds, d.ID(), g, r.Value(g))
				}
			}
			st.Sensors = append(st.Sensors, ss)
		}
	})
	return st, err
}
