package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/api"
)

// pollFans fetches the fan ports once and then their status on every run.
func (m *Monitor) pollFans() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.FetchTimeout)
	defer cancel()

	ports := m.knownFanPorts()
	if len(ports) == 0 {
		fetched, err := m.fans.FetchFanPorts(ctx)
		if err != nil {
			m.logger.Debug("fan ports not fetched", zap.Error(err))
			return
		}
		if len(fetched) == 0 {
			return
		}
		m.post(func() { m.fanPorts = fetched })
		ports = fetched
	}

	status, err := m.fans.FetchFanStatus(ctx, ports)
	if err != nil {
		m.logger.Debug("fan status not fetched", zap.Error(err))
		return
	}
	m.post(func() { m.updateFans(status) })
}

func (m *Monitor) knownFanPorts() []string {
	var ports []string
	_ = m.do(m.ctx, func() { ports = m.fanPorts })
	return ports
}

func (m *Monitor) updateFans(status []api.FanStatus) {
	for _, f := range status {
		on := f.On()
		if prev, ok := m.fanStatus[f.Port]; ok && prev == on {
			continue
		}
		m.fanStatus[f.Port] = on
		m.logger.Info("fan status changed", zap.String("port", f.Port), zap.Bool("on", on))
		m.emit(Event{Type: EventFanChanged, Port: f.Port, On: on})
	}

	running := 0
	for _, on := range m.fanStatus {
		if on {
			running++
		}
	}
	m.metrics.SetFansOn(running)
}
