// Package params holds the current value of every wizard parameter.
package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
)

// Store maps parameter keys to their current values. It is created empty,
// filled lazily as steps are shown, and never shrinks.
//
// The panel only touches a Store from its event loop; the mutex exists so
// views rendered on other goroutines can take snapshots.
type Store struct {
	mu      sync.RWMutex
	values  map[string]any
	catalog catalog.Catalog
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// SetCatalog replaces the definitions used to resolve updates. Existing
// values are kept.
func (s *Store) SetCatalog(c catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = c
}

// Catalog returns the current definitions.
func (s *Store) Catalog() catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// InitializeDefaults gives every curated parameter of every step a value if
// it has none yet.
func (s *Store) InitializeDefaults(c catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range c {
		s.ensureLocked(step)
	}
}

// EnsureInitialized is InitializeDefaults for a single step.
func (s *Store) EnsureInitialized(step catalog.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(step)
}

func (s *Store) ensureLocked(step catalog.Step) {
	for _, p := range step.Parameters {
		if !p.Curated {
			continue
		}
		if _, ok := s.values[p.Key]; ok {
			continue
		}
		s.values[p.Key] = DefaultFor(p)
	}
}

// DefaultFor is the initial value of p: its declared default, else false for
// boolean kinds, else its minimum (or 0) for numeric or ranged
// definitions, else "".
func DefaultFor(p catalog.Parameter) any {
	if p.Default != nil {
		if f, ok := catalog.AsFloat(p.Default); ok {
			return f
		}
		return p.Default
	}
	switch {
	case p.UIKind.Boolean():
		return false
	case p.UIKind.Numeric(), p.Ranged():
		if p.Min != nil {
			return *p.Min
		}
		return 0.0
	}
	return ""
}

// Update stores raw for key after coercing, clamping and quantizing it
// against the key's first definition in the catalog, and returns the stored
// value. Keys without a definition are stored as given.
func (s *Store) Update(key string, raw any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.catalog.Lookup(key)
	if !ok {
		s.values[key] = raw
		return raw, nil
	}
	v, err := Normalize(def, raw)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", key, err)
	}
	s.values[key] = v
	return v, nil
}

// Set stores value verbatim. It is used for values the host pushes, which
// are already authoritative.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of all values.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Normalize coerces raw to def's kind. Numeric values, and numbers given for
// any definition with a range or step, are clamped to the definition's
// bounds and then snapped to the nearest multiple of its step, measured from
// the lower bound (or 0).
func Normalize(def catalog.Parameter, raw any) (any, error) {
	switch {
	case def.UIKind.Boolean():
		return toBool(raw)
	case def.UIKind.Numeric():
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return clampAndQuantize(def, f), nil
	case def.Ranged():
		if f, err := toFloat(raw); err == nil {
			return clampAndQuantize(def, f), nil
		}
	}
	return raw, nil
}

func clampAndQuantize(def catalog.Parameter, v float64) float64 {
	lo, hi := def.Bounds()
	v = clamp(v, lo, hi)

	if def.Step == nil || *def.Step <= 0 {
		return v
	}
	step := *def.Step
	base := 0.0
	if lo != nil {
		base = *lo
	}
	n := math.Round((v - base) / step)
	q := base + n*step
	// Rounding up can overshoot an upper bound that is not on the grid.
	if hi != nil && q > *hi {
		q = base + (n-1)*step
	}
	if lo != nil && q < *lo {
		q = base + (n+1)*step
	}
	return q
}

func clamp(v float64, lo, hi *float64) float64 {
	if lo != nil && hi != nil && *lo > *hi {
		// Inverted range: nothing satisfies both bounds; prefer the lower.
		return *lo
	}
	if lo != nil && v < *lo {
		v = *lo
	}
	if hi != nil && v > *hi {
		v = *hi
	}
	return v
}

func toFloat(raw any) (float64, error) {
	if f, ok := catalog.AsFloat(raw); ok {
		return f, nil
	}
	switch v := raw.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %v", raw)
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", v)
		}
		return b, nil
	}
	if f, ok := catalog.AsFloat(raw); ok {
		return f != 0, nil
	}
	return false, fmt.Errorf("not a boolean: %v", raw)
}
