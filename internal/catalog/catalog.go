// Package catalog defines the wizard's step and parameter definitions, as
// delivered by the host or loaded from a catalog file.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// UIKind is the kind of control a parameter is edited with.
type UIKind string

const (
	KindSlider   UIKind = "slider"
	KindNumber   UIKind = "number"
	KindCheckbox UIKind = "checkbox"
	KindSelect   UIKind = "select"
	KindText     UIKind = "text"
	KindSeed     UIKind = "seed"
)

// Boolean reports whether values of this kind are booleans.
func (k UIKind) Boolean() bool {
	return k == KindCheckbox
}

// Numeric reports whether values of this kind are numbers with an optional
// range.
func (k UIKind) Numeric() bool {
	switch k {
	case KindSlider, KindNumber, KindSeed:
		return true
	}
	return false
}

// Parameter is one parameter definition.
type Parameter struct {
	Key        string   `json:"key" yaml:"key"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
	UIKind     UIKind   `json:"ui_kind" yaml:"ui_kind"`
	Default    any      `json:"default,omitempty" yaml:"default,omitempty"`
	Min        *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step       *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	ClampedMin *float64 `json:"clamped_min,omitempty" yaml:"clamped_min,omitempty"`
	ClampedMax *float64 `json:"clamped_max,omitempty" yaml:"clamped_max,omitempty"`
	Curated    bool     `json:"curated" yaml:"curated"`
	Options    []string `json:"options,omitempty" yaml:"options,omitempty"`
	// AzgaarKey, when set, is the map generator's own name for the
	// parameter; edits are then also sent as update-param.
	AzgaarKey string `json:"azgaar_key,omitempty" yaml:"azgaar_key,omitempty"`
}

// Bounds returns the runtime clamp range. ClampedMin/ClampedMax take
// precedence over Min/Max; each side is reported independently.
func (p Parameter) Bounds() (lo, hi *float64) {
	lo, hi = p.Min, p.Max
	if p.ClampedMin != nil {
		lo = p.ClampedMin
	}
	if p.ClampedMax != nil {
		hi = p.ClampedMax
	}
	return lo, hi
}

// Ranged reports whether p declares a bound or a step, which makes its
// values numeric whatever its UIKind.
func (p Parameter) Ranged() bool {
	lo, hi := p.Bounds()
	return lo != nil || hi != nil || p.Step != nil
}

// hostParameter holds the camelCase spellings hosts may use instead of the
// snake_case tags on Parameter.
type hostParameter struct {
	UIKind     UIKind   `json:"uiKind" yaml:"uiKind"`
	ClampedMin *float64 `json:"clampedMin" yaml:"clampedMin"`
	ClampedMax *float64 `json:"clampedMax" yaml:"clampedMax"`
	AzgaarKey  string   `json:"azgaarKey" yaml:"azgaarKey"`
}

func (p *Parameter) merge(h hostParameter) {
	if p.UIKind == "" {
		p.UIKind = h.UIKind
	}
	if p.ClampedMin == nil {
		p.ClampedMin = h.ClampedMin
	}
	if p.ClampedMax == nil {
		p.ClampedMax = h.ClampedMax
	}
	if p.AzgaarKey == "" {
		p.AzgaarKey = h.AzgaarKey
	}
}

// UnmarshalJSON accepts both snake_case and camelCase field names.
func (p *Parameter) UnmarshalJSON(b []byte) error {
	type plain Parameter
	var h hostParameter
	if err := json.Unmarshal(b, (*plain)(p)); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return err
	}
	p.merge(h)
	return nil
}

// UnmarshalYAML accepts both snake_case and camelCase field names.
func (p *Parameter) UnmarshalYAML(value *yaml.Node) error {
	type plain Parameter
	var h hostParameter
	if err := value.Decode((*plain)(p)); err != nil {
		return err
	}
	if err := value.Decode(&h); err != nil {
		return err
	}
	p.merge(h)
	return nil
}

// Step is one wizard step.
type Step struct {
	Title      string      `json:"title" yaml:"title"`
	InfoText   *string     `json:"info_text,omitempty" yaml:"info_text,omitempty"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

type hostStep struct {
	InfoText *string `json:"infoText" yaml:"infoText"`
}

// UnmarshalJSON accepts "infoText" as well as "info_text".
func (s *Step) UnmarshalJSON(b []byte) error {
	type plain Step
	var h hostStep
	if err := json.Unmarshal(b, (*plain)(s)); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return err
	}
	if s.InfoText == nil {
		s.InfoText = h.InfoText
	}
	return nil
}

// UnmarshalYAML accepts "infoText" as well as "info_text".
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type plain Step
	var h hostStep
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	if err := value.Decode(&h); err != nil {
		return err
	}
	if s.InfoText == nil {
		s.InfoText = h.InfoText
	}
	return nil
}

// Catalog is the ordered list of steps.
type Catalog []Step

// Lookup returns the first definition of key, scanning steps in order.
func (c Catalog) Lookup(key string) (Parameter, bool) {
	for _, step := range c {
		for _, p := range step.Parameters {
			if p.Key == key {
				return p, true
			}
		}
	}
	return Parameter{}, false
}

// Step returns step i, or false when out of range.
func (c Catalog) Step(i int) (Step, bool) {
	if i < 0 || i >= len(c) {
		return Step{}, false
	}
	return c[i], true
}

// Validate reports problems that do not stop the catalog from being used.
// Keys defined more than once with different ranges are reported because
// updates resolve against the first definition only.
func Validate(c Catalog) []string {
	var issues []string
	seen := make(map[string]Parameter)
	for i, step := range c {
		for _, p := range step.Parameters {
			where := fmt.Sprintf("step %d parameter %q", i, p.Key)
			if p.Key == "" {
				issues = append(issues, fmt.Sprintf("step %d: parameter without key", i))
				continue
			}
			if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
				issues = append(issues, fmt.Sprintf("%s: min %v > max %v", where, *p.Min, *p.Max))
			}
			if p.Step != nil && *p.Step <= 0 {
				issues = append(issues, fmt.Sprintf("%s: step must be positive", where))
			}
			if d, ok := AsFloat(p.Default); ok && p.UIKind.Numeric() {
				if (p.Min != nil && d < *p.Min) || (p.Max != nil && d > *p.Max) {
					issues = append(issues, fmt.Sprintf("%s: default %v outside range", where, d))
				}
			}
			if prev, dup := seen[p.Key]; dup {
				if !sameRange(prev, p) {
					issues = append(issues, fmt.Sprintf("%s: redefined with a different range; the first definition wins", where))
				}
				continue
			}
			seen[p.Key] = p
		}
	}
	sort.Strings(issues)
	return issues
}

func sameRange(a, b Parameter) bool {
	eq := func(x, y *float64) bool {
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return *x == *y
	}
	alo, ahi := a.Bounds()
	blo, bhi := b.Bounds()
	return eq(alo, blo) && eq(ahi, bhi) && eq(a.Step, b.Step)
}

// AsFloat converts the numeric types produced by JSON and YAML decoding.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

type file struct {
	Steps Catalog `yaml:"steps"`
}

var errNoSteps = errors.New("catalog has no steps")

// Load reads a catalog document: YAML (or JSON) with a top-level "steps"
// list.
func Load(r io.Reader) (Catalog, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoSteps
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Steps) == 0 {
		return nil, errNoSteps
	}
	return f.Steps, nil
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (Catalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer fh.Close()
	c, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
