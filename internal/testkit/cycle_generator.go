package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
)

// CycleGeneratorConfig configures the synthetic cycling data generator
type CycleGeneratorConfig struct {
	Cycles               int     `json:"cycles"`
	InitialCapacity      float64 `json:"initial_capacity"`       // mA·h
	FirstCycleEfficiency float64 `json:"first_cycle_efficiency"` // fraction
	SteadyEfficiency     float64 `json:"steady_efficiency"`      // fraction
	FadePerCycle         float64 `json:"fade_per_cycle"`         // fraction of initial capacity lost per cycle
	Noise                float64 `json:"noise"`                  // relative standard deviation
	FailAtCycle          int     `json:"fail_at_cycle"`          // 0 disables
	MissingEvery         int     `json:"missing_every"`          // 0 disables
	Seed                 int64   `json:"seed"`
}

// DefaultCycleConfig returns a healthy graphite half-cell with slow linear fade
func DefaultCycleConfig() CycleGeneratorConfig {
	return CycleGeneratorConfig{
		Cycles:               100,
		InitialCapacity:      3.0,
		FirstCycleEfficiency: 0.88,
		SteadyEfficiency:     0.995,
		FadePerCycle:         0.0005,
		Seed:                 42,
	}
}

// CycleGenerator produces deterministic cycle series from a seed
type CycleGenerator struct {
	config CycleGeneratorConfig
	rng    *rand.Rand
}

// NewCycleGenerator creates a new generator
func NewCycleGenerator(config CycleGeneratorConfig) *CycleGenerator {
	return &CycleGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns one record per cycle, numbered from 1
func (g *CycleGenerator) Generate() []cycling.CycleRecord {
	c := g.config
	records := make([]cycling.CycleRecord, 0, c.Cycles)
	for i := 1; i <= c.Cycles; i++ {
		discharge := c.InitialCapacity * (1 - c.FadePerCycle*float64(i-1))
		if c.FailAtCycle > 0 && i >= c.FailAtCycle {
			discharge *= 0.3
		}
		if c.Noise > 0 {
			discharge *= 1 + c.Noise*g.rng.NormFloat64()
		}

		eff := c.SteadyEfficiency
		if i == 1 {
			eff = c.FirstCycleEfficiency
		}
		reported := eff

		rec := cycling.CycleRecord{
			CycleIndex:        i,
			ChargeCapacity:    discharge / eff,
			DischargeCapacity: discharge,
			Efficiency:        &reported,
		}
		if c.MissingEvery > 0 && i%c.MissingEvery == 0 {
			rec.DischargeCapacity = math.NaN()
			rec.Efficiency = nil
		}
		records = append(records, rec)
	}
	return records
}

// CellMetadata returns metadata for a 15 mm graphite disc with 12 mg loading
func CellMetadata(name string) cycling.CellMetadata {
	diameter, thickness := 15.0, 60.0
	return cycling.CellMetadata{
		CellID:             core.CellID("cell-" + name),
		CellName:           name,
		ExperimentID:       "exp-synthetic",
		ExperimentName:     "synthetic",
		ProjectID:          "proj-synthetic",
		ProjectType:        cycling.ProjectFullCell,
		LoadingMg:          12,
		ActiveMaterialPct:  92,
		DiscDiameterMm:     &diameter,
		PressedThicknessUm: &thickness,
		Formulation: []cycling.FormulationComponent{
			{Component: "Graphite", DryMassFractionPct: 92},
			{Component: "Super P", DryMassFractionPct: 3},
			{Component: "PVDF", DryMassFractionPct: 5},
		},
	}
}

// Cohort generates n cells that differ only by seed
func Cohort(n int, config CycleGeneratorConfig) []cycling.CellData {
	cells := make([]cycling.CellData, n)
	for i := range cells {
		cfg := config
		cfg.Seed = config.Seed + int64(i)
		cells[i] = cycling.CellData{
			Metadata: CellMetadata(fmt.Sprintf("C%02d", i+1)),
			Cycles:   NewCycleGenerator(cfg).Generate(),
		}
	}
	return cells
}
