package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

// refreshRoster refetches the roster while connected. A failed fetch keeps
// the current roster.
func (m *Monitor) refreshRoster() {
	if !m.client.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.FetchTimeout)
	defer cancel()

	roster, err := m.roster.FetchRoster(ctx)
	if err != nil {
		m.logger.Warn("roster refresh failed, keeping current roster", zap.Error(err))
		return
	}
	m.post(func() { m.updateRoster(roster) })
}

// updateRoster applies a refreshed roster. Removed sensors lose their
// subscription, reading, alarm record and liveness; threshold overrides
// and display names stay. Added sensors are subscribed and their liveness
// is seeded.
func (m *Monitor) updateRoster(roster []sensor.Descriptor) {
	named, changed := m.doc.ApplyNames(roster)
	if changed {
		m.savePreferences()
	}

	old := m.state.Roster()
	diff := sensor.DiffRosters(old, named)
	moved := movedTopics(old, named)
	if diff.Empty() && len(moved) == 0 {
		m.state.SetRoster(named)
		return
	}

	for _, d := range diff.Removed {
		m.unsubscribe(d)
	}
	for _, pair := range moved {
		m.unsubscribe(pair[0])
	}
	m.state.SetRoster(named)
	for _, d := range diff.Added {
		m.subscribe(d)
	}
	for _, pair := range moved {
		m.subscribe(pair[1])
	}
	if m.healthActive {
		m.state.SeedLiveness(m.now())
	}
	m.metrics.SetTracked(len(named))

	m.logger.Info("roster changed",
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
		zap.Int("sensors", len(named)))
	m.emit(Event{Type: EventRosterChanged, Sensors: len(named)})

	m.evaluate()
}

// movedTopics returns sensors whose identity stayed but whose topic changed,
// which happens when a device is swapped on the same port.
func movedTopics(old, new []sensor.Descriptor) [][2]sensor.Descriptor {
	byID := make(map[string]sensor.Descriptor, len(old))
	for _, d := range old {
		byID[d.ID()] = d
	}
	var moved [][2]sensor.Descriptor
	for _, d := range new {
		if prev, ok := byID[d.ID()]; ok && prev.Topic() != d.Topic() {
			moved = append(moved, [2]sensor.Descriptor{prev, d})
		}
	}
	return moved
}
