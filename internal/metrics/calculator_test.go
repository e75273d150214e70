package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
)

func fadingCell(n int) ([]cycling.CycleRecord, cycling.CellMetadata) {
	records := make([]cycling.CycleRecord, n)
	for i := range records {
		discharge := 1.5 - 0.004*float64(i)
		if i == 0 {
			discharge = 1.6
		}
		records[i] = cycling.CycleRecord{
			CycleIndex:        i + 1,
			ChargeCapacity:    discharge / 0.995,
			DischargeCapacity: discharge,
		}
	}
	records[0].ChargeCapacity = 1.6 / 0.85

	diameter, thickness := 15.0, 60.0
	meta := cycling.CellMetadata{
		CellID:             "cell-1",
		CellName:           "GR-01",
		ExperimentName:     "graphite baseline",
		ProjectType:        cycling.ProjectAnode,
		LoadingMg:          12,
		ActiveMaterialPct:  92,
		FormationCycles:    cycling.Int(3),
		DiscDiameterMm:     &diameter,
		PressedThicknessUm: &thickness,
		Formulation:        []cycling.FormulationComponent{{Component: "Graphite", DryMassFractionPct: 100}},
	}
	return records, meta
}

func TestComputeCellMetrics(t *testing.T) {
	records, meta := fadingCell(30)

	b, err := ComputeCellMetrics(records, meta)
	require.NoError(t, err)

	mass := 0.012 * 0.92
	require.NotNil(t, b.FirstDischarge)
	assert.InDelta(t, 1.6/mass, *b.FirstDischarge, 1e-9)

	require.NotNil(t, b.FirstEfficiency)
	assert.InDelta(t, 100.0/85.0*100.0, *b.FirstEfficiency, 1e-9, "anode projects invert the ratio")

	require.NotNil(t, b.ReversibleCapacity)
	assert.InDelta(t, (1.5-0.004*3)/mass, *b.ReversibleCapacity, 1e-9)

	require.NotNil(t, b.CoulombicEfficiency)
	assert.InDelta(t, 100.0/99.5*100.0, *b.CoulombicEfficiency, 1e-9)

	require.NotNil(t, b.CycleLife80)
	assert.Equal(t, 30, *b.CycleLife80)

	require.NotNil(t, b.ArealCapacity)
	area := math.Pi * 0.75 * 0.75
	assert.InDelta(t, (1.5-0.004*2)/area, *b.ArealCapacity, 1e-9)
	assert.False(t, b.ArealCapacityLowConfidence)

	assert.NotNil(t, b.Porosity)
	assert.NotNil(t, b.RetentionPct)
	assert.NotNil(t, b.FadeRatePer100)
	assert.Equal(t, 3, b.FormationCycles)
	assert.Equal(t, "GR-01", b.CellName)
}

func TestComputeCellMetrics_Deterministic(t *testing.T) {
	records, meta := fadingCell(40)

	first, err := ComputeCellMetrics(records, meta)
	require.NoError(t, err)
	second, err := ComputeCellMetrics(records, meta)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.NotNil(t, first.FadeRatePer100)
	assert.Equal(t, math.Float64bits(*first.FadeRatePer100), math.Float64bits(*second.FadeRatePer100))
}

func TestComputeCellMetrics_UnknownMass(t *testing.T) {
	records, meta := fadingCell(10)
	meta.LoadingMg = 0

	b, err := ComputeCellMetrics(records, meta)
	require.NoError(t, err)
	assert.Nil(t, b.FirstDischarge)
	assert.Nil(t, b.ReversibleCapacity)
	assert.NotNil(t, b.FirstEfficiency)
	assert.NotNil(t, b.CycleLife80, "cycle life only needs the raw series")
}

func TestComputeCellMetrics_ShortSeries(t *testing.T) {
	records, meta := fadingCell(2)

	b, err := ComputeCellMetrics(records, meta)
	require.NoError(t, err)
	assert.Nil(t, b.ReversibleCapacity)
	assert.Nil(t, b.CoulombicEfficiency)
	assert.Nil(t, b.FadeRatePer100)
	assert.NotNil(t, b.FirstDischarge)
}

func TestComputeCellMetrics_InvalidSeries(t *testing.T) {
	_, meta := fadingCell(1)

	_, err := ComputeCellMetrics(nil, meta)
	assert.ErrorIs(t, err, core.ErrEmptySeries)

	_, err = ComputeCellMetrics([]cycling.CycleRecord{{CycleIndex: 0, DischargeCapacity: 1}}, meta)
	assert.True(t, core.IsInvalidSeriesError(err))
}

func TestPostFormationCoulombicEfficiency(t *testing.T) {
	discharge := []float64{100, 100, 100, 99, 98, 97, 80, 99}
	eff := []float64{80, 90, 99, 99.5, 99.6, 99.7, 99.8, 99.9}

	got := PostFormationCoulombicEfficiency(discharge, eff, 2, DefaultKneeThreshold)
	require.NotNil(t, got)
	assert.InDelta(t, 99.6, *got, 1e-9, "averaging stops at the knee")

	assert.Nil(t, PostFormationCoulombicEfficiency(discharge[:3], eff[:3], 2, DefaultKneeThreshold))
}

func TestPostFormationCoulombicEfficiency_SkipsMissing(t *testing.T) {
	discharge := []float64{100, 100, math.NaN(), 99}
	eff := []float64{90, 99, 99, 98}

	got := PostFormationCoulombicEfficiency(discharge, eff, 1, DefaultKneeThreshold)
	require.NotNil(t, got)
	assert.Equal(t, 98.0, *got)
}

func TestCalculator_KneeThreshold(t *testing.T) {
	discharge := []float64{100, 100, 96, 92}
	eff := []float64{99, 99, 99, 99}

	strict := PostFormationCoulombicEfficiency(discharge, eff, 1, 0.99)
	assert.Nil(t, strict)

	loose := PostFormationCoulombicEfficiency(discharge, eff, 1, 0.9)
	require.NotNil(t, loose)
	assert.Equal(t, 99.0, *loose)
}

func TestComputeArealCapacity(t *testing.T) {
	got, ok := ComputeArealCapacity([]float64{5, 4.8, 4.6, 4.7}, nil, 2)
	require.True(t, ok)
	assert.InDelta(t, 2.35, got.Value, 1e-12)
	assert.Equal(t, 4, got.ReferenceCycle)
	assert.False(t, got.LowConfidence)
	require.NotNil(t, got.DeviationFromFirstPct)
	assert.InDelta(t, 6.0, *got.DeviationFromFirstPct, 1e-9)

	got, ok = ComputeArealCapacity([]float64{5, 4, 3, 3.5}, nil, 1)
	require.True(t, ok)
	assert.True(t, got.LowConfidence, "30 percent below the first cycle")

	got, ok = ComputeArealCapacity([]float64{5, 4.9, 4.9, 4.8}, []float64{90, 95, 97, 75}, 1)
	require.True(t, ok)
	assert.Equal(t, 3, got.ReferenceCycle)
	assert.False(t, got.LowConfidence)

	got, ok = ComputeArealCapacity([]float64{5, 4.9, 4.8, 4.9}, []float64{90, 95, 97, 75}, 1)
	require.True(t, ok)
	assert.Equal(t, 4, got.ReferenceCycle)
	assert.True(t, got.LowConfidence)

	got, ok = ComputeArealCapacity([]float64{-2, -1.9}, nil, 1)
	require.True(t, ok)
	assert.Equal(t, 2, got.ReferenceCycle)
	assert.InDelta(t, 1.9, got.Value, 1e-12)

	_, ok = ComputeArealCapacity([]float64{5}, nil, 0)
	assert.False(t, ok)
}

func TestAverageExperiment(t *testing.T) {
	a := cycling.CellMetricBundle{CellName: "a", LoadingMg: 10, ActiveMaterialPct: 90, FormationCycles: 4, FirstDischarge: cycling.Float(300)}
	b := cycling.CellMetricBundle{CellName: "b", LoadingMg: 12, ActiveMaterialPct: 92, FormationCycles: 4, FirstDischarge: cycling.Float(310), CycleLife80: cycling.Int(200)}

	avg := AverageExperiment("exp", []cycling.CellMetricBundle{a, b})
	require.NotNil(t, avg)
	assert.Equal(t, "exp (Avg)", avg.Name)
	assert.Equal(t, 2, avg.CellCount)
	assert.InDelta(t, 11.0, avg.LoadingMg, 1e-12)
	require.NotNil(t, avg.Metrics[cycling.MetricFirstDischarge])
	assert.InDelta(t, 305.0, *avg.Metrics[cycling.MetricFirstDischarge], 1e-12)
	require.NotNil(t, avg.Metrics[cycling.MetricCycleLife80])
	assert.Equal(t, 200.0, *avg.Metrics[cycling.MetricCycleLife80])
	assert.Nil(t, avg.Metrics[cycling.MetricPorosity])

	assert.Nil(t, AverageExperiment("empty", nil))
}
