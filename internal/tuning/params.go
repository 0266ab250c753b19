package tuning

import (
	"sort"
	"sync"
)

// ParameterSpec bounds one tunable parameter.
type ParameterSpec struct {
	Default float64
	Min     float64
	Max     float64
}

// parameterSpecs is the fixed registry of tunables. Recommended values are
// always clamped into these bounds.
var parameterSpecs = map[string]ParameterSpec{
	"attack_time":      {Default: 0.1, Min: 0.01, Max: 1.0},
	"decay_time":       {Default: 0.2, Min: 0.05, Max: 2.0},
	"sustain_level":    {Default: 0.7, Min: 0.1, Max: 1.0},
	"release_time":     {Default: 0.3, Min: 0.1, Max: 3.0},
	"batch_size":       {Default: 100, Min: 10, Max: 1000},
	"tick_rate":        {Default: 60, Min: 10, Max: 120},
	"queue_depth":      {Default: 1000, Min: 100, Max: 10000},
	"worker_count":     {Default: 4, Min: 1, Max: 16},
	"impact_threshold": {Default: 0.5, Min: 0.1, Max: 0.95},
}

// SpecFor returns the registered bounds for a parameter name.
func SpecFor(name string) (ParameterSpec, bool) {
	spec, ok := parameterSpecs[name]
	return spec, ok
}

// ParameterNames returns all registered parameter names sorted.
func ParameterNames() []string {
	names := make([]string, 0, len(parameterSpecs))
	for name := range parameterSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParameterStore supplies current parameter values and applies new ones.
// Implementations are expected to be fast and non-blocking, and must not
// call back into the Optimizer.
type ParameterStore interface {
	CurrentValue(parameter string) float64
	ApplyValue(parameter string, value float64) bool
}

// StoreFuncs adapts plain functions to the ParameterStore interface.
type StoreFuncs struct {
	Current func(parameter string) float64
	Apply   func(parameter string, value float64) bool
}

// CurrentValue implements ParameterStore.
func (s StoreFuncs) CurrentValue(parameter string) float64 {
	if s.Current == nil {
		return 0
	}
	return s.Current(parameter)
}

// ApplyValue implements ParameterStore.
func (s StoreFuncs) ApplyValue(parameter string, value float64) bool {
	if s.Apply == nil {
		return false
	}
	return s.Apply(parameter, value)
}

// MemoryStore is an in-process ParameterStore seeded with registry defaults.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewMemoryStore returns a MemoryStore holding every registered parameter at
// its default value.
func NewMemoryStore() *MemoryStore {
	values := make(map[string]float64, len(parameterSpecs))
	for name, spec := range parameterSpecs {
		values[name] = spec.Default
	}
	return &MemoryStore{values: values}
}

// CurrentValue returns the stored value, falling back to the registry default.
func (s *MemoryStore) CurrentValue(parameter string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[parameter]; ok {
		return v
	}
	if spec, ok := parameterSpecs[parameter]; ok {
		return spec.Default
	}
	return 0
}

// ApplyValue stores the value for a registered parameter and reports whether
// the parameter is known.
func (s *MemoryStore) ApplyValue(parameter string, value float64) bool {
	if _, ok := parameterSpecs[parameter]; !ok {
		return false
	}
	s.mu.Lock()
	s.values[parameter] = value
	s.mu.Unlock()
	return true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
