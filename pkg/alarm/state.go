// Package alarm holds the monitoring state and derives per-sensor alarm
// records and the site verdict from it.
package alarm

import (
	"time"

	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

// State is the monitoring state: the ordered roster, the latest reading and
// alarm record per sensor, and the liveness table.
//
// State is not safe for concurrent use. It is owned by a single goroutine.
type State struct {
	roster   []sensor.Descriptor
	index    map[string]int
	byTopic  map[string]string
	readings map[string]sensor.Reading
	alarms   map[string]string
	lastSeen map[string]time.Time
}

// NewState creates an empty monitoring state.
func NewState() *State {
	return &State{
		index:    make(map[string]int),
		byTopic:  make(map[string]string),
		readings: make(map[string]sensor.Reading),
		alarms:   make(map[string]string),
		lastSeen: make(map[string]time.Time),
	}
}

// SetRoster replaces the roster. Sensors that are no longer listed are
// purged.
func (s *State) SetRoster(roster []sensor.Descriptor) {
	keep := make(map[string]bool, len(roster))
	for _, d := range roster {
		keep[d.ID()] = true
	}
	for _, d := range s.roster {
		if !keep[d.ID()] {
			s.purge(d.ID())
		}
	}

	s.roster = append([]sensor.Descriptor(nil), roster...)
	s.reindex()
}

// Remove drops one sensor and everything recorded for it.
func (s *State) Remove(id string) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	s.purge(id)
	s.roster = append(s.roster[:i], s.roster[i+1:]...)
	s.reindex()
}

func (s *State) purge(id string) {
	delete(s.readings, id)
	delete(s.alarms, id)
	delete(s.lastSeen, id)
}

func (s *State) reindex() {
	s.index = make(map[string]int, len(s.roster))
	s.byTopic = make(map[string]string, len(s.roster))
	for i, d := range s.roster {
		s.index[d.ID()] = i
		s.byTopic[d.Topic()] = d.ID()
	}
}

// Roster returns a copy of the roster in order.
func (s *State) Roster() []sensor.Descriptor {
	return append([]sensor.Descriptor(nil), s.roster...)
}

// Len returns the number of sensors in the roster.
func (s *State) Len() int {
	return len(s.roster)
}

// Sensor returns the descriptor with the given id.
func (s *State) Sensor(id string) (sensor.Descriptor, bool) {
	i, ok := s.index[id]
	if !ok {
		return sensor.Descriptor{}, false
	}
	return s.roster[i], true
}

// SensorByTopic returns the descriptor subscribed on topic.
func (s *State) SensorByTopic(topic string) (sensor.Descriptor, bool) {
	id, ok := s.byTopic[topic]
	if !ok {
		return sensor.Descriptor{}, false
	}
	return s.Sensor(id)
}

// SetDisplayName changes the label of every roster entry with the given
// serial. It reports whether any entry matched.
func (s *State) SetDisplayName(serial, name string) bool {
	found := false
	for i := range s.roster {
		if s.roster[i].Serial == serial {
			s.roster[i].DisplayName = name
			found = true
		}
	}
	return found
}

// Reading returns the latest reading of a sensor.
func (s *State) Reading(id string) (sensor.Reading, bool) {
	r, ok := s.readings[id]
	return r, ok
}

// Alarm returns the current alarm record of a sensor, or "".
func (s *State) Alarm(id string) string {
	return s.alarms[id]
}

// Alarms returns a copy of all alarm records.
func (s *State) Alarms() map[string]string {
	out := make(map[string]string, len(s.alarms))
	for k, v := range s.alarms {
		out[k] = v
	}
	return out
}

// Touch records that a message arrived for a sensor.
func (s *State) Touch(id string, now time.Time) {
	if _, ok := s.index[id]; ok {
		s.lastSeen[id] = now
	}
}

// SeedLiveness marks every roster sensor as seen at now without
// overwriting existing entries.
func (s *State) SeedLiveness(now time.Time) {
	for _, d := range s.roster {
		if _, ok := s.lastSeen[d.ID()]; !ok {
			s.lastSeen[d.ID()] = now
		}
	}
}

// ClearLiveness forgets every liveness entry.
func (s *State) ClearLiveness() {
	s.lastSeen = make(map[string]time.Time)
}

// Liveness counts tracked sensors and those silent for longer than silence.
func (s *State) Liveness(now time.Time, silence time.Duration) (stale, tracked int) {
	for _, seen := range s.lastSeen {
		tracked++
		if now.Sub(seen) > silence {
			stale++
		}
	}
	return stale, tracked
}

// Reset clears readings, alarm records and liveness. The roster stays.
func (s *State) Reset() {
	s.readings = make(map[string]sensor.Reading)
	s.alarms = make(map[string]string)
	s.ClearLiveness()
}
