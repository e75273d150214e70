package porosity

import "strings"

// DensityTable maps a formulation component name to its reference density in g/cm³
type DensityTable map[string]float64

// Lookup returns the density for a component name, ignoring surrounding whitespace
func (t DensityTable) Lookup(component string) (float64, bool) {
	d, ok := t[strings.TrimSpace(component)]
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}

// With returns a copy of the table extended with extra entries
func (t DensityTable) With(extra map[string]float64) DensityTable {
	out := make(DensityTable, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[strings.TrimSpace(k)] = v
	}
	return out
}

// DefaultDensities returns a fresh copy of the built-in reference table
func DefaultDensities() DensityTable {
	return DensityTable{}.With(defaultDensities)
}

var defaultDensities = map[string]float64{
	"Graphite":                         2.26,
	"Lithium Cobalt Oxide (LiCoO2)":    5.1,
	"Lithium Iron Phosphate (LiFePO4)": 3.6,
	"LFP":                              3.6,
	"Lithium Nickel Manganese Cobalt Oxide (NMC)": 4.7,
	"Lithium Nickel Cobalt Aluminum Oxide (NCA)":  4.8,
	"Lithium Manganese Oxide (LiMn2O4)":           4.2,
	"Carbon Black":                                1.8,
	"Super P":                                     1.8,
	"Ketjen Black":                                1.8,
	"Vulcan XC-72":                                1.8,
	"Cx(B)":                                       1.8,
	"Cx(e)":                                       1.8,
	"Polyvinylidene Fluoride (PVDF)":              1.78,
	"PVDF HSV900":                                 1.78,
	"Carboxymethyl Cellulose (CMC)":               1.6,
	"Styrene Butadiene Rubber (SBR)":              0.95,
	"Polyacrylic Acid (PAA)":                      1.4,
	"LiPAA":                                       1.4,
	"Lithium Titanate (Li4Ti5O12)":                3.5,
	"Silicon":                                     2.33,
	"nano SI":                                     2.33,
	"Tin":                                         7.31,
	"Aluminum":                                    2.7,
	"Copper":                                      8.96,
	"Nickel":                                      8.91,
	"Carbon Nanotubes (CNT)":                      1.3,
	"Graphene":                                    2.26,
	"Activated Carbon":                            1.5,
	"Carbon Fiber":                                1.8,
	"Graphite Oxide":                              1.8,
	"Reduced Graphene Oxide (rGO)":                2.0,
	"Lithium Metal":                               0.534,
	"Sodium Metal":                                0.968,
	"Zinc":                                        7.14,
	"Iron":                                        7.87,
	"Manganese":                                   7.21,
	"Cobalt":                                      8.9,
	"Nickel Oxide":                                6.67,
	"Cobalt Oxide":                                6.44,
	"Manganese Oxide":                             5.43,
	"Aluminum Oxide":                              3.95,
	"Silicon Oxide":                               2.65,
	"Titanium Oxide":                              4.23,
	"Zinc Oxide":                                  5.61,
	"Iron Oxide":                                  5.24,
	"Copper Oxide":                                6.31,
	"Nickel Hydroxide":                            4.1,
	"Cobalt Hydroxide":                            3.6,
	"Manganese Hydroxide":                         3.3,
	"Aluminum Hydroxide":                          2.42,
	"Binder (Generic)":                            1.5,
	"Conductive Additive (Generic)":               1.8,
	"Active Material (Generic)":                   4.0,
}
