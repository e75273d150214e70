package cycling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseFormulationJSON reads a stored formulation list. Records written by
// older tools use several spellings for the same keys; all are accepted.
// Entries without a component name are skipped.
func ParseFormulationJSON(data []byte) ([]FormulationComponent, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse formulation: %w", err)
	}

	out := make([]FormulationComponent, 0, len(raw))
	for _, item := range raw {
		name := strings.TrimSpace(firstString(item, "component", "Component", "Component Name"))
		if name == "" {
			continue
		}
		frac, _ := firstNumber(item, "dry_mass_fraction_pct", "Dry Mass Fraction (%)", "dry_mass_fraction", "Value")
		out = append(out, FormulationComponent{Component: name, DryMassFractionPct: frac})
	}
	return out, nil
}

// FormulationFraction returns the dry-mass percentage of a named component,
// matched case-insensitively
func FormulationFraction(formulation []FormulationComponent, component string) (float64, bool) {
	want := strings.ToLower(strings.TrimSpace(component))
	for _, c := range formulation {
		if strings.ToLower(strings.TrimSpace(c.Component)) == want {
			return c.DryMassFractionPct, true
		}
	}
	return 0, false
}

func firstString(item map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(item map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := item[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
