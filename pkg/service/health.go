package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/connection"
)

// checkSensorHealth counts silent sensors. Most of them silent, or none
// tracked, forces a full resync after ResyncDelay; half of them silent drops
// the session and leaves recovery to the reconnect manager.
//
// A forced resync deactivates the check until the next session, so it
// fires at most once per session.
func (m *Monitor) checkSensorHealth(now time.Time) {
	if !m.healthActive || !m.client.IsConnected() {
		return
	}

	stale, tracked := m.state.Liveness(now, m.cfg.SensorSilence)
	m.metrics.SetSensors(tracked, stale)

	var ratio float64
	if tracked > 0 {
		ratio = float64(stale) / float64(tracked)
	}

	switch {
	case tracked == 0 || ratio >= m.cfg.ResyncRatio:
		m.logger.Warn("sensors silent, forcing full resync",
			zap.Int("stale", stale),
			zap.Int("tracked", tracked),
			zap.Duration("delay", m.cfg.ResyncDelay))
		m.healthActive = false
		m.state.ClearLiveness()
		m.scheduleResync(reasonHealth, m.cfg.ResyncDelay)

	case ratio >= m.cfg.DropRatio:
		m.logger.Warn("sensors silent, dropping session",
			zap.Int("stale", stale),
			zap.Int("tracked", tracked))
		m.client.Drop("sensors silent")

	case stale > 0:
		m.logger.Debug("some sensors silent",
			zap.Int("stale", stale),
			zap.Int("tracked", tracked))
	}
}

// scheduleResync runs a resync through the reconnect manager after delay.
func (m *Monitor) scheduleResync(reason string, delay time.Duration) {
	if m.resyncTimer != nil {
		m.resyncTimer.Stop()
	}
	var timer connection.Timer
	timer = m.scheduler.AfterFunc(delay, func() {
		m.post(func() {
			if m.resyncTimer != timer {
				return
			}
			m.resyncTimer = nil
			if err := m.manualResync(reason); err != nil {
				m.logger.Debug("resync not started", zap.Error(err))
			}
		})
	})
	m.resyncTimer = timer
}

// manualResync restarts the session immediately with a fresh attempt
// counter.
func (m *Monitor) manualResync(reason string) error {
	m.setReason(reason)
	if err := m.reconnect.ManualReconnect(); err != nil {
		m.setReason("")
		return err
	}
	return nil
}
