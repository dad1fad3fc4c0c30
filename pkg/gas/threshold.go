package gas

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoThreshold is returned when no threshold exists for a gas.
var ErrNoThreshold = errors.New("no threshold for gas")

// Threshold holds the bands for one gas. Symmetric gases use WarningMin,
// WarningMax and DangerMin. O2 uses DangerMin and DangerMax; its warning
// bands are [DangerMin, NormalMin) and (NormalMax, DangerMax].
type Threshold struct {
	NormalMin  float64 `json:"normal_min" yaml:"normal_min"`
	NormalMax  float64 `json:"normal_max" yaml:"normal_max"`
	WarningMin float64 `json:"warning_min,omitempty" yaml:"warning_min,omitempty"`
	WarningMax float64 `json:"warning_max,omitempty" yaml:"warning_max,omitempty"`
	DangerMin  float64 `json:"danger_min" yaml:"danger_min"`
	DangerMax  float64 `json:"danger_max,omitempty" yaml:"danger_max,omitempty"`
	Unit       string  `json:"unit" yaml:"unit"`
}

// DefaultThresholds returns the factory threshold table.
func DefaultThresholds() map[Type]Threshold {
	return map[Type]Threshold{
		CO:  {NormalMin: 0, NormalMax: 30, WarningMin: 30, WarningMax: 200, DangerMin: 200, Unit: "ppm"},
		O2:  {NormalMin: 20, NormalMax: 22, DangerMin: 19.5, DangerMax: 23.5, Unit: "%"},
		H2S: {NormalMin: 0, NormalMax: 5, WarningMin: 5, WarningMax: 50, DangerMin: 50, Unit: "ppm"},
		CO2: {NormalMin: 0, NormalMax: 1500, WarningMin: 1500, WarningMax: 5000, DangerMin: 5000, Unit: "ppm"},
		LEL: {NormalMin: 0, NormalMax: 10, WarningMin: 10, WarningMax: 25, DangerMin: 25, Unit: "%"},
	}
}

// ValidationError lists every ordering rule a set of thresholds breaks.
type ValidationError struct {
	SensorID string
	Problems []string
}

func (e *ValidationError) Error() string {
	if e.SensorID == "" {
		return "invalid thresholds: " + strings.Join(e.Problems, "; ")
	}
	return fmt.Sprintf("invalid thresholds for %s: %s", e.SensorID, strings.Join(e.Problems, "; "))
}

// Validate checks the ordering rules for one gas and returns the broken
// ones.
func Validate(t Type, th Threshold) []string {
	var problems []string
	name := t.DisplayName()

	if th.NormalMin >= th.NormalMax {
		problems = append(problems, fmt.Sprintf("%s: normal min must be below normal max", name))
	}

	if t.Asymmetric() {
		if th.DangerMin >= th.NormalMin {
			problems = append(problems, fmt.Sprintf("%s: lower danger bound must be below normal min", name))
		}
		if th.DangerMax <= th.NormalMax {
			problems = append(problems, fmt.Sprintf("%s: upper danger bound must be above normal max", name))
		}
		return problems
	}

	if th.WarningMin >= th.WarningMax {
		problems = append(problems, fmt.Sprintf("%s: warning min must be below warning max", name))
	}
	if th.NormalMax > th.WarningMin {
		problems = append(problems, fmt.Sprintf("%s: warning min must not be below normal max", name))
	}
	if th.WarningMax > th.DangerMin {
		problems = append(problems, fmt.Sprintf("%s: danger min must not be below warning max", name))
	}
	return problems
}

func validateSet(sensorID string, set map[Type]Threshold) error {
	gases := make([]Type, 0, len(set))
	for g := range set {
		gases = append(gases, g)
	}
	sort.Slice(gases, func(i, j int) bool { return gases[i] < gases[j] })

	var problems []string
	for _, g := range gases {
		if _, ok := ParseType(string(g)); !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown gas", g))
			continue
		}
		problems = append(problems, Validate(g, set[g])...)
	}
	if len(problems) > 0 {
		return &ValidationError{SensorID: sensorID, Problems: problems}
	}
	return nil
}

// Resolver looks up the effective threshold for a sensor and gas.
type Resolver interface {
	Resolve(sensorID string, gas Type) (Threshold, error)
}

// Store holds the global defaults and per-sensor overrides.
type Store struct {
	mu        sync.RWMutex
	defaults  map[Type]Threshold
	overrides map[string]map[Type]Threshold
}

// NewStore creates a store with the factory defaults and no overrides.
func NewStore() *Store {
	return &Store{
		defaults:  DefaultThresholds(),
		overrides: make(map[string]map[Type]Threshold),
	}
}

// SetDefaults replaces the global defaults for the given gases. The set is
// validated as a whole and applied all or nothing.
func (s *Store) SetDefaults(set map[Type]Threshold) error {
	if err := validateSet("", set); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for g, th := range set {
		s.defaults[g] = th
	}
	return nil
}

// Default returns the global default for gas.
func (s *Store) Default(gas Type) (Threshold, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.defaults[gas]
	return th, ok
}

// Resolve returns the sensor's override for gas, else the default.
func (s *Store) Resolve(sensorID string, gas Type) (Threshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if th, ok := s.overrides[sensorID][gas]; ok {
		return th, nil
	}
	if th, ok := s.defaults[gas]; ok {
		return th, nil
	}
	return Threshold{}, fmt.Errorf("%w %s", ErrNoThreshold, gas)
}

// SetOverrides validates every entry and then stores all of them, or none
// if any rule is broken. Gases not in set keep their current override.
func (s *Store) SetOverrides(sensorID string, set map[Type]Threshold) error {
	if err := validateSet(sensorID, set); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.overrides[sensorID]
	if cur == nil {
		cur = make(map[Type]Threshold, len(set))
		s.overrides[sensorID] = cur
	}
	for g, th := range set {
		cur[g] = th
	}
	return nil
}

// ClearOverrides drops every override of a sensor.
func (s *Store) ClearOverrides(sensorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, sensorID)
}

// Overrides returns a copy of all overrides.
func (s *Store) Overrides() map[string]map[Type]Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[Type]Threshold, len(s.overrides))
	for id, set := range s.overrides {
		cp := make(map[Type]Threshold, len(set))
		for g, th := range set {
			cp[g] = th
		}
		out[id] = cp
	}
	return out
}

// LoadOverrides replaces all overrides with persisted ones. A sensor whose
// set is invalid is skipped; the errors are joined and returned.
func (s *Store) LoadOverrides(all map[string]map[Type]Threshold) error {
	loaded := make(map[string]map[Type]Threshold, len(all))
	var errs []error

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		set := all[id]
		if err := validateSet(id, set); err != nil {
			errs = append(errs, err)
			continue
		}
		cp := make(map[Type]Threshold, len(set))
		for g, th := range set {
			cp[g] = th
		}
		loaded[id] = cp
	}

	s.mu.Lock()
	s.overrides = loaded
	s.mu.Unlock()

	return errors.Join(errs...)
}
