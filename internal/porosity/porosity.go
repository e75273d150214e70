// Package porosity estimates electrode porosity from measured disc density and
// the mass-weighted reference density of the electrode formulation.
package porosity

import (
	"math"
	"strings"

	"cellscope/domain/cycling"
)

// Result holds the three porosity outputs. Porosity is a fraction in [0, 1].
type Result struct {
	ElectrodeDensity   float64 `json:"electrode_density"`
	TheoreticalDensity float64 `json:"theoretical_density"`
	Porosity           float64 `json:"porosity"`
}

// Calculator computes porosity against a reference density table
type Calculator struct {
	densities DensityTable
}

// NewCalculator creates a calculator; a nil table selects the built-in one
func NewCalculator(densities DensityTable) *Calculator {
	if densities == nil {
		densities = DefaultDensities()
	}
	return &Calculator{densities: densities}
}

var defaultCalculator = NewCalculator(nil)

// ComputePorosity uses the built-in density table
func ComputePorosity(discMassMg, diameterMm, thicknessUm float64, formulation []cycling.FormulationComponent) Result {
	return defaultCalculator.Compute(discMassMg, diameterMm, thicknessUm, formulation)
}

// Compute derives electrode density, theoretical density and porosity. An
// empty formulation or unmeasurable geometry yields zero porosity rather than
// an error.
func (c *Calculator) Compute(discMassMg, diameterMm, thicknessUm float64, formulation []cycling.FormulationComponent) Result {
	if len(formulation) == 0 {
		return Result{}
	}

	res := Result{
		ElectrodeDensity:   ElectrodeDensity(discMassMg, diameterMm, thicknessUm),
		TheoreticalDensity: c.TheoreticalDensity(formulation),
	}
	if res.ElectrodeDensity <= 0 || res.TheoreticalDensity <= 0 {
		return res
	}
	res.Porosity = Porosity(res.ElectrodeDensity, res.TheoreticalDensity)
	return res
}

// ElectrodeDensity returns g/cm³ for a disc, or 0 on any non-positive input
func ElectrodeDensity(discMassMg, diameterMm, thicknessUm float64) float64 {
	if !(discMassMg > 0) || !(diameterMm > 0) || !(thicknessUm > 0) {
		return 0
	}
	massG := discMassMg / 1000.0
	radiusCm := diameterMm / 2.0 / 10.0
	thicknessCm := thicknessUm / 10000.0

	volume := math.Pi * radiusCm * radiusCm * thicknessCm
	if volume <= 0 {
		return 0
	}
	return massG / volume
}

// TheoreticalDensity is Σ mass fraction / Σ (mass fraction / density) over
// components with a known density. Unknown components drop out of both sums;
// MissingDensityComponents lists them.
func (c *Calculator) TheoreticalDensity(formulation []cycling.FormulationComponent) float64 {
	var totalMass, totalVolume float64
	for _, comp := range formulation {
		name := strings.TrimSpace(comp.Component)
		frac := comp.DryMassFractionPct / 100.0
		if name == "" || !(frac > 0) {
			continue
		}
		density, ok := c.densities.Lookup(name)
		if !ok {
			continue
		}
		totalMass += frac
		totalVolume += frac / density
	}
	if totalVolume <= 0 {
		return 0
	}
	return totalMass / totalVolume
}

// MissingDensityComponents returns weighted components absent from the table
func (c *Calculator) MissingDensityComponents(formulation []cycling.FormulationComponent) []string {
	var missing []string
	for _, comp := range formulation {
		name := strings.TrimSpace(comp.Component)
		if name == "" || !(comp.DryMassFractionPct > 0) {
			continue
		}
		if _, ok := c.densities.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Porosity is 1 - measured/theoretical, clamped to [0, 1]
func Porosity(electrodeDensity, theoreticalDensity float64) float64 {
	if theoreticalDensity <= 0 {
		return 0
	}
	p := 1.0 - electrodeDensity/theoreticalDensity
	return math.Max(0, math.Min(1, p))
}
