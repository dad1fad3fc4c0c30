package alarm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

// Alarm record prefixes.
const (
	PrefixDanger  = "DANGER: "
	PrefixWarning = "WARNING: "
)

var (
	dangerKeywords  = []string{"DANGER", "CRITICAL", "HIGH"}
	warningKeywords = []string{"WARNING", "WARN", "LOW"}
)

// Result is the outcome of applying one reading.
type Result struct {
	SensorID string
	Statuses map[gas.Type]gas.Status
	Alarm    string

	// AdvisoryLevel grades the server's alarm text. It is StatusNormal when
	// the reading carries none and never feeds the verdict.
	AdvisoryLevel gas.Status
}

// Verdict is the site-wide safety verdict.
type Verdict struct {
	Dangerous  bool
	HasWarning bool
	Problems   []string
}

// Safe reports whether nothing is dangerous and nothing warns.
func (v Verdict) Safe() bool {
	return !v.Dangerous && !v.HasWarning
}

// Engine classifies readings and derives alarm records and verdicts.
type Engine struct {
	resolver gas.Resolver
	logger   *zap.Logger
}

// NewEngine creates an engine that resolves thresholds through r.
func NewEngine(r gas.Resolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{resolver: r, logger: logger}
}

// Apply stores a reading and rebuilds the sensor's alarm record. Readings
// for sensors outside the roster are ignored and ok is false.
func (e *Engine) Apply(s *State, sensorID string, r sensor.Reading) (Result, bool) {
	d, ok := s.Sensor(sensorID)
	if !ok {
		e.logger.Debug("reading for unknown sensor ignored", zap.String("sensor", sensorID))
		return Result{}, false
	}

	s.readings[sensorID] = r

	res := Result{SensorID: sensorID, Statuses: make(map[gas.Type]gas.Status)}
	var dangers, warnings []string
	for _, g := range d.Gases() {
		raw := r.Value(g)
		if raw == gas.NoValue {
			continue
		}
		status := gas.ResolveAndClassify(e.resolver, sensorID, g, raw)
		res.Statuses[g] = status

		switch status {
		case gas.StatusDanger:
			dangers = append(dangers, e.describe(sensorID, g, raw, "danger"))
		case gas.StatusWarning:
			warnings = append(warnings, e.describe(sensorID, g, raw, "warning"))
		}
	}

	switch {
	case len(dangers) > 0:
		res.Alarm = PrefixDanger + strings.Join(dangers, ", ")
		s.alarms[sensorID] = res.Alarm
	case len(warnings) > 0:
		res.Alarm = PrefixWarning + strings.Join(warnings, ", ")
		s.alarms[sensorID] = res.Alarm
	default:
		delete(s.alarms, sensorID)
	}

	if r.Advisory != "" {
		res.AdvisoryLevel = e.AdvisoryLevel(sensorID, r)
		worst := worstStatus(res.Statuses)
		fields := []zap.Field{
			zap.String("sensor", sensorID),
			zap.String("message", r.Advisory),
			zap.Stringer("level", res.AdvisoryLevel),
			zap.Stringer("readings", worst),
		}
		if res.AdvisoryLevel != worst {
			e.logger.Warn("server alarm disagrees with readings", fields...)
		} else {
			e.logger.Info("server alarm", fields...)
		}
	}

	return res, true
}

// AdvisoryLevel grades the server's alarm text of a reading with the
// sensor's thresholds.
func (e *Engine) AdvisoryLevel(sensorID string, r sensor.Reading) gas.Status {
	return gas.MessageLevel(sensorID, r.Advisory, e.resolver)
}

// worstStatus returns the most severe classified status. Errors rank
// below normal.
func worstStatus(statuses map[gas.Type]gas.Status) gas.Status {
	worst := gas.StatusNormal
	for _, st := range statuses {
		if st.Severity() > worst.Severity() {
			worst = st
		}
	}
	return worst
}

func (e *Engine) describe(sensorID string, g gas.Type, raw, level string) string {
	unit := ""
	if e.resolver != nil {
		if th, err := e.resolver.Resolve(sensorID, g); err == nil {
			unit = th.Unit
		}
	}
	return fmt.Sprintf("%s %s (%s%s)", g.DisplayName(), level, raw, unit)
}

// Verdict evaluates every roster sensor's latest reading against current
// thresholds, then its alarm record.
func (e *Engine) Verdict(s *State) Verdict {
	var v Verdict
	for _, d := range s.roster {
		id := d.ID()
		if r, ok := s.readings[id]; ok {
			for _, g := range d.Gases() {
				switch gas.ResolveAndClassify(e.resolver, id, g, r.Value(g)) {
				case gas.StatusDanger:
					v.Dangerous = true
					v.Problems = append(v.Problems, d.Label()+" "+g.DisplayName())
				case gas.StatusWarning:
					v.HasWarning = true
				}
			}
		}

		switch RecordLevel(s.alarms[id]) {
		case gas.StatusDanger:
			v.Dangerous = true
			v.Problems = append(v.Problems, d.Label()+" alarm")
		case gas.StatusWarning:
			v.HasWarning = true
		}
	}

	if v.Dangerous {
		v.HasWarning = false
	}
	return v
}

// RecordLevel grades an alarm record by keyword.
func RecordLevel(record string) gas.Status {
	upper := strings.ToUpper(strings.TrimSpace(record))
	if upper == "" {
		return gas.StatusNormal
	}
	for _, k := range dangerKeywords {
		if strings.Contains(upper, k) {
			return gas.StatusDanger
		}
	}
	for _, k := range warningKeywords {
		if strings.Contains(upper, k) {
			return gas.StatusWarning
		}
	}
	return gas.StatusNormal
}
