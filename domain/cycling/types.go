package cycling

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"cellscope/domain/core"
)

// DefaultFormationCycles is used when a cell does not state its formation window
const DefaultFormationCycles = 4

// ProjectType selects the efficiency convention for a cell
type ProjectType string

const (
	ProjectFullCell ProjectType = "Full Cell"
	ProjectCathode  ProjectType = "Cathode"
	ProjectAnode    ProjectType = "Anode"
)

// CycleRecord is one row of a cycling test. Capacities are in mA·h; a missing
// measurement is stored as NaN.
type CycleRecord struct {
	CycleIndex        int      `json:"cycle_index"`
	ChargeCapacity    float64  `json:"charge_capacity"`
	DischargeCapacity float64  `json:"discharge_capacity"`
	Efficiency        *float64 `json:"efficiency,omitempty"` // fraction as reported by the cycler
	ChargeCutoffV     *float64 `json:"charge_cutoff_v,omitempty"`
	DischargeCutoffV  *float64 `json:"discharge_cutoff_v,omitempty"`
}

type cycleRecordJSON struct {
	CycleIndex        int      `json:"cycle_index"`
	ChargeCapacity    *float64 `json:"charge_capacity"`
	DischargeCapacity *float64 `json:"discharge_capacity"`
	Efficiency        *float64 `json:"efficiency,omitempty"`
	ChargeCutoffV     *float64 `json:"charge_cutoff_v,omitempty"`
	DischargeCutoffV  *float64 `json:"discharge_cutoff_v,omitempty"`
}

// MarshalJSON writes missing capacities as null
func (r CycleRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(cycleRecordJSON{
		CycleIndex:        r.CycleIndex,
		ChargeCapacity:    Float(r.ChargeCapacity),
		DischargeCapacity: Float(r.DischargeCapacity),
		Efficiency:        r.Efficiency,
		ChargeCutoffV:     r.ChargeCutoffV,
		DischargeCutoffV:  r.DischargeCutoffV,
	})
}

// UnmarshalJSON reads null or absent capacities as missing
func (r *CycleRecord) UnmarshalJSON(data []byte) error {
	var raw cycleRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = CycleRecord{
		CycleIndex:        raw.CycleIndex,
		ChargeCapacity:    math.NaN(),
		DischargeCapacity: math.NaN(),
		Efficiency:        raw.Efficiency,
		ChargeCutoffV:     raw.ChargeCutoffV,
		DischargeCutoffV:  raw.DischargeCutoffV,
	}
	if raw.ChargeCapacity != nil {
		r.ChargeCapacity = *raw.ChargeCapacity
	}
	if raw.DischargeCapacity != nil {
		r.DischargeCapacity = *raw.DischargeCapacity
	}
	return nil
}

// FormulationComponent is one dry-mass entry of an electrode recipe
type FormulationComponent struct {
	Component          string  `json:"component" validate:"required"`
	DryMassFractionPct float64 `json:"dry_mass_fraction_pct" validate:"gte=0,lte=100"`
}

// CellMetadata describes the physical cell behind a cycle series
type CellMetadata struct {
	CellID             core.CellID            `json:"cell_id"`
	CellName           string                 `json:"cell_name"`
	ExperimentID       core.ExperimentID      `json:"experiment_id"`
	ExperimentName     string                 `json:"experiment_name"`
	ProjectID          core.ProjectID         `json:"project_id"`
	ProjectType        ProjectType            `json:"project_type"`
	LoadingMg          float64                `json:"loading" validate:"gte=0"`
	ActiveMaterialPct  float64                `json:"active_material" validate:"gte=0,lte=100"`
	FormationCycles    *int                   `json:"formation_cycles,omitempty"`
	Formulation        []FormulationComponent `json:"formulation,omitempty" validate:"dive"`
	DiscMassMg         *float64               `json:"disc_mass_mg,omitempty"`
	DiscDiameterMm     *float64               `json:"disc_diameter_mm,omitempty"`
	PressedThicknessUm *float64               `json:"pressed_thickness_um,omitempty"`
}

// FormationCyclesOrDefault returns the stated formation window or the default of 4
func (m CellMetadata) FormationCyclesOrDefault() int {
	if m.FormationCycles == nil || *m.FormationCycles < 0 {
		return DefaultFormationCycles
	}
	return *m.FormationCycles
}

// ActiveMassGrams returns loading × active fraction in grams, 0 when unknown
func (m CellMetadata) ActiveMassGrams() float64 {
	if m.LoadingMg <= 0 || m.ActiveMaterialPct <= 0 {
		return 0
	}
	return (m.LoadingMg / 1000.0) * (m.ActiveMaterialPct / 100.0)
}

// DiscAreaCm2 returns the electrode disc area when a positive diameter is known
func (m CellMetadata) DiscAreaCm2() (float64, bool) {
	if m.DiscDiameterMm == nil || *m.DiscDiameterMm <= 0 {
		return 0, false
	}
	radiusCm := *m.DiscDiameterMm / 20.0
	return math.Pi * radiusCm * radiusCm, true
}

// DiscMass returns the electrode disc mass in mg, falling back to the loading
func (m CellMetadata) DiscMass() float64 {
	if m.DiscMassMg != nil {
		return *m.DiscMassMg
	}
	return m.LoadingMg
}

// CellData pairs a cell's metadata with its normalised cycle series
type CellData struct {
	Metadata CellMetadata  `json:"metadata"`
	Cycles   []CycleRecord `json:"cycles"`
}

// IsMissing reports whether a measurement is absent
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Float returns a pointer to v, or nil when v is missing or infinite
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}

// ParseProjectType accepts the project type names case-insensitively. An
// empty string means Full Cell.
func ParseProjectType(s string) (ProjectType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full cell", "full", "fullcell", "full_cell":
		return ProjectFullCell, nil
	case "cathode":
		return ProjectCathode, nil
	case "anode":
		return ProjectAnode, nil
	}
	return "", fmt.Errorf("unknown project type %q", s)
}
