package app

import (
	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal/errors"
	"cellscope/internal/porosity"
)

// PorosityResult is the porosity breakdown of one cell plus the formulation
// components that had no reference density
type PorosityResult struct {
	CellID core.CellID `json:"cell_id,omitempty"`
	porosity.Result
	MissingDensity []string `json:"missing_density_components,omitempty"`
}

// PorosityRequest carries raw electrode measurements
type PorosityRequest struct {
	DiscMassMg         float64                        `json:"disc_mass_mg" validate:"gte=0"`
	DiscDiameterMm     float64                        `json:"disc_diameter_mm" validate:"gte=0"`
	PressedThicknessUm float64                        `json:"pressed_thickness_um" validate:"gte=0"`
	Formulation        []cycling.FormulationComponent `json:"formulation" validate:"dive"`
}

// ComputePorosity derives porosity from a cell's stored geometry. Cells with
// no recorded diameter or thickness are an input error.
func ComputePorosity(meta cycling.CellMetadata, calc *porosity.Calculator) (*PorosityResult, error) {
	if meta.DiscDiameterMm == nil || meta.PressedThicknessUm == nil {
		return nil, errors.InvalidInput("cell " + meta.CellID.String() + " has no disc diameter or pressed thickness")
	}
	res := EvaluatePorosity(PorosityRequest{
		DiscMassMg:         meta.DiscMass(),
		DiscDiameterMm:     *meta.DiscDiameterMm,
		PressedThicknessUm: *meta.PressedThicknessUm,
		Formulation:        meta.Formulation,
	}, calc)
	res.CellID = meta.CellID
	return res, nil
}

// EvaluatePorosity runs the calculator over raw measurements. A nil
// calculator uses the built-in density table.
func EvaluatePorosity(req PorosityRequest, calc *porosity.Calculator) *PorosityResult {
	if calc == nil {
		calc = porosity.NewCalculator(nil)
	}
	return &PorosityResult{
		Result:         calc.Compute(req.DiscMassMg, req.DiscDiameterMm, req.PressedThicknessUm, req.Formulation),
		MissingDensity: calc.MissingDensityComponents(req.Formulation),
	}
}
