package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/connection"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

// resync tears the session down, drops derived state, refetches the roster
// and opens a fresh session. The outcome reaches the reconnect manager
// through OnConnect or handleSessionLost.
//
// Readings and alarm records are dropped, but the lamp keeps its state
// until the first readings of the new session produce a verdict.
func (m *Monitor) resync(reason string) {
	m.resyncMu.Lock()
	defer m.resyncMu.Unlock()

	ctx := m.ctx
	if ctx.Err() != nil {
		return
	}
	m.metrics.Resync(reason)
	m.logger.Info("full resync", zap.String("reason", reason))

	if err := m.do(ctx, m.resetSession); err != nil {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	roster, err := m.roster.FetchRoster(fetchCtx)
	cancel()
	if err != nil {
		m.logger.Warn("roster fetch failed", zap.Error(err))
		_ = m.do(ctx, func() { m.handleSessionLost("roster fetch failed: " + err.Error()) })
		return
	}

	if err := m.do(ctx, func() { m.applyRoster(roster) }); err != nil {
		return
	}

	if err := m.client.Connect(ctx, m.cfg.Address); err != nil {
		m.logger.Warn("connect failed", zap.String("address", m.cfg.Address), zap.Error(err))
		_ = m.do(ctx, func() { m.handleSessionLost("connect failed: " + err.Error()) })
		return
	}

	_ = m.do(ctx, m.armConnectTimeout)
}

// resetSession closes the current session and clears everything derived
// from it. The roster stays until the new one is applied.
func (m *Monitor) resetSession() {
	m.healthActive = false
	m.stopTimers()

	if err := m.client.Disconnect(); err != nil {
		m.logger.Debug("disconnect failed", zap.Error(err))
	}
	if err := m.client.UnsubscribeAll(); err != nil {
		m.logger.Debug("unsubscribe failed", zap.Error(err))
	}
	m.state.Reset()
}

// applyRoster names the sensors, stores the roster and registers one
// subscription per sensor. The subscriptions are sent once CONNECTED
// arrives.
func (m *Monitor) applyRoster(roster []sensor.Descriptor) {
	named, changed := m.doc.ApplyNames(roster)
	if changed {
		m.savePreferences()
	}

	m.state.SetRoster(named)
	for _, d := range named {
		m.subscribe(d)
	}
	m.metrics.SetTracked(len(named))

	m.logger.Info("roster loaded", zap.Int("sensors", len(named)))
	m.emit(Event{Type: EventRosterChanged, Sensors: len(named)})
}

func (m *Monitor) subscribe(d sensor.Descriptor) {
	if err := m.client.Subscribe(d.Topic(), m.onReading); err != nil {
		m.logger.Warn("subscribe failed", zap.String("topic", d.Topic()), zap.Error(err))
	}
}

func (m *Monitor) unsubscribe(d sensor.Descriptor) {
	if err := m.client.Unsubscribe(d.Topic()); err != nil {
		m.logger.Warn("unsubscribe failed", zap.String("topic", d.Topic()), zap.Error(err))
	}
}

// onReading is the topic handler. It runs on the transport's read
// goroutine.
func (m *Monitor) onReading(topic string, body []byte) {
	at := m.now()
	m.post(func() { m.handleReading(topic, body, at) })
}

// armConnectTimeout drops the session if CONNECTED does not arrive in
// time.
func (m *Monitor) armConnectTimeout() {
	if m.cfg.ConnectTimeout <= 0 || m.client.IsConnected() {
		return
	}
	if m.connectTimer != nil {
		m.connectTimer.Stop()
	}
	var timer connection.Timer
	timer = m.scheduler.AfterFunc(m.cfg.ConnectTimeout, func() {
		m.post(func() {
			if m.connectTimer != timer {
				return
			}
			m.connectTimer = nil
			if !m.client.IsConnected() {
				m.logger.Warn("no CONNECTED within timeout", zap.Duration("timeout", m.cfg.ConnectTimeout))
				m.client.Drop("connect timeout")
			}
		})
	})
	m.connectTimer = timer
}
