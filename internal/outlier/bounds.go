package outlier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cellscope/domain/cycling"
)

// Bound is a physically plausible range for one metric
type Bound struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Unit string  `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// BoundsTable maps metrics to their hard bounds. The defaults are
// chemistry-agnostic; a YAML file can override individual entries.
type BoundsTable map[cycling.Metric]Bound

// DefaultBounds returns a fresh copy of the built-in table
func DefaultBounds() BoundsTable {
	return BoundsTable{
		cycling.MetricFirstDischarge:      {Min: 50, Max: 400, Unit: "mAh/g"},
		cycling.MetricFirstEfficiency:     {Min: 30, Max: 100, Unit: "%"},
		cycling.MetricReversibleCapacity:  {Min: 50, Max: 350, Unit: "mAh/g"},
		cycling.MetricCoulombicEfficiency: {Min: 85, Max: 100, Unit: "%"},
		cycling.MetricArealCapacity:       {Min: 0.1, Max: 10, Unit: "mAh/cm²"},
		cycling.MetricCycleLife80:         {Min: 10, Max: 5000, Unit: "cycles"},
	}
}

// BoundaryMode decides whether a value equal to a bound is in range
type BoundaryMode string

const (
	// BoundaryInclusive treats min and max themselves as plausible (min ≤ v ≤ max)
	BoundaryInclusive BoundaryMode = "inclusive"
	// BoundaryExclusive treats a value on a bound as out of range (min < v < max)
	BoundaryExclusive BoundaryMode = "exclusive"
)

// ParseBoundaryMode accepts "inclusive" or "exclusive"; empty means inclusive
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch BoundaryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", BoundaryInclusive:
		return BoundaryInclusive, nil
	case BoundaryExclusive:
		return BoundaryExclusive, nil
	}
	return "", fmt.Errorf("unknown boundary mode %q", s)
}

// Check returns whether v is out of range and, if so, a reason
func (b Bound) Check(v float64, mode BoundaryMode) (bool, string) {
	below := v < b.Min
	above := v > b.Max
	if mode == BoundaryExclusive {
		below = v <= b.Min
		above = v >= b.Max
	}
	switch {
	case below:
		return true, fmt.Sprintf("Below minimum (%g %s)", b.Min, b.Unit)
	case above:
		return true, fmt.Sprintf("Above maximum (%g %s)", b.Max, b.Unit)
	}
	return false, ""
}

// With returns a copy of the table with the given entries replaced
func (t BoundsTable) With(overrides BoundsTable) BoundsTable {
	out := make(BoundsTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

type boundsFile struct {
	Bounds map[string]Bound `yaml:"bounds"`
}

// ParseBounds reads a YAML document of the form
//
//	bounds:
//	  first_discharge: {min: 60, max: 380, unit: mAh/g}
//
// and applies it on top of the default table.
func ParseBounds(data []byte) (BoundsTable, error) {
	var f boundsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bounds: %w", err)
	}

	known := DefaultBounds()
	overrides := make(BoundsTable, len(f.Bounds))
	for name, b := range f.Bounds {
		m := cycling.Metric(strings.TrimSpace(name))
		def, ok := known[m]
		if !ok {
			return nil, fmt.Errorf("bounds: unknown metric %q", name)
		}
		if b.Min > b.Max {
			return nil, fmt.Errorf("bounds: %s min %g exceeds max %g", name, b.Min, b.Max)
		}
		if b.Unit == "" {
			b.Unit = def.Unit
		}
		overrides[m] = b
	}
	return known.With(overrides), nil
}

// LoadBounds reads a YAML bounds file from disk
func LoadBounds(path string) (BoundsTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bounds file: %w", err)
	}
	return ParseBounds(data)
}
