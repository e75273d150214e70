package cycling

import (
	"encoding/json"
	"math"
	"testing"

	"cellscope/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSeries_SortsAndDedups(t *testing.T) {
	in := []CycleRecord{
		{CycleIndex: 3, ChargeCapacity: 1, DischargeCapacity: 0.9},
		{CycleIndex: 1, ChargeCapacity: 1, DischargeCapacity: 0.8},
		{CycleIndex: 2, ChargeCapacity: 1, DischargeCapacity: 0.85},
		{CycleIndex: 2, ChargeCapacity: 1, DischargeCapacity: 0.1},
	}

	out, err := NormalizeSeries(in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []int{1, 2, 3}, CycleIndices(out))
	assert.Equal(t, 0.85, out[1].DischargeCapacity, "first occurrence of a repeated index wins")
	assert.Equal(t, 3, in[0].CycleIndex, "input must not be reordered")
}

func TestNormalizeSeries_StructuralErrors(t *testing.T) {
	_, err := NormalizeSeries(nil)
	assert.ErrorIs(t, err, core.ErrEmptySeries)

	_, err = NormalizeSeries([]CycleRecord{{CycleIndex: 0, ChargeCapacity: 1, DischargeCapacity: 1}})
	assert.ErrorIs(t, err, core.ErrMalformedSeries)

	_, err = NormalizeSeries([]CycleRecord{{CycleIndex: 1, ChargeCapacity: math.NaN(), DischargeCapacity: math.NaN()}})
	assert.ErrorIs(t, err, core.ErrMalformedSeries)
	assert.True(t, core.IsInvalidSeriesError(err))
}

func TestEfficiencyPct_Conventions(t *testing.T) {
	r := CycleRecord{CycleIndex: 1, ChargeCapacity: 2.0, DischargeCapacity: 1.8}
	assert.InDelta(t, 90.0, r.EfficiencyPct(ProjectFullCell), 1e-9)
	assert.InDelta(t, 100.0/90.0*100.0, r.EfficiencyPct(ProjectAnode), 1e-9)

	reported := 0.5
	r.Efficiency = &reported
	assert.InDelta(t, 90.0, r.EfficiencyPct(ProjectCathode), 1e-9, "raw capacities beat the reported field")

	r.ChargeCapacity = math.NaN()
	assert.InDelta(t, 50.0, r.EfficiencyPct(ProjectCathode), 1e-9, "reported field is the fallback")

	r.Efficiency = nil
	assert.True(t, math.IsNaN(r.EfficiencyPct(ProjectCathode)))
}

func TestSpecificDischargeSeries(t *testing.T) {
	meta := CellMetadata{LoadingMg: 20, ActiveMaterialPct: 50}
	recs := []CycleRecord{{CycleIndex: 1, DischargeCapacity: 1.5}}
	assert.InDelta(t, 150.0, SpecificDischargeSeries(recs, meta)[0], 1e-9)

	meta.ActiveMaterialPct = 0
	assert.True(t, math.IsNaN(SpecificDischargeSeries(recs, meta)[0]))
}

func TestBundleKey_TracksDeterminants(t *testing.T) {
	data := CellData{
		Metadata: CellMetadata{CellID: "c1", ProjectType: ProjectFullCell, LoadingMg: 10, ActiveMaterialPct: 90},
		Cycles:   []CycleRecord{{CycleIndex: 1, ChargeCapacity: 1, DischargeCapacity: 0.9}},
	}
	base := BundleKey(data)
	assert.Equal(t, base, BundleKey(data))

	fc := 2
	changed := data
	changed.Metadata.FormationCycles = &fc
	assert.NotEqual(t, base, BundleKey(changed))

	changed = data
	changed.Metadata.ProjectType = ProjectAnode
	assert.NotEqual(t, base, BundleKey(changed))
}

func TestCellMetricBundle_JSONRoundTrip(t *testing.T) {
	b := CellMetricBundle{
		CellID:                     "cell-1",
		CellName:                   "A1",
		ExperimentName:             "exp",
		ProjectType:                ProjectAnode,
		LoadingMg:                  12.5,
		ActiveMaterialPct:          92,
		FormationCycles:            4,
		FirstDischarge:             Float(181.25),
		FirstEfficiency:            Float(88.1),
		ReversibleCapacity:         Float(170),
		CycleLife80:                Int(412),
		CoulombicEfficiency:        Float(99.6),
		ArealCapacity:              Float(2.1),
		ArealCapacityLowConfidence: true,
		Porosity:                   nil,
		RetentionPct:               Float(93.41),
		FadeRatePer100:             Float(1.25),
	}

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"porosity":null`)
	assert.Contains(t, string(data), `"cycle_life_80":412`)

	var back CellMetricBundle
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b, back)
}

func TestCohortContext_ValuesSkipMissing(t *testing.T) {
	cohort := NewCohortContext("exp-1", []CellMetricBundle{
		{CellID: "a", FirstDischarge: Float(180)},
		{CellID: "b"},
		{CellID: "c", FirstDischarge: Float(175), CycleLife80: Int(300)},
	})
	assert.Equal(t, []float64{180, 175}, cohort.Values(MetricFirstDischarge))
	assert.Equal(t, []float64{300}, cohort.Values(MetricCycleLife80))
	assert.True(t, cohort.Contains(CellMetricBundle{CellID: "b"}))
	assert.False(t, cohort.Contains(CellMetricBundle{CellID: "z"}))
}

func TestParseFormulationJSON_Aliases(t *testing.T) {
	raw := []byte(`[
		{"Component": "Graphite", "Dry Mass Fraction (%)": 94},
		{"component": "Super P", "dry_mass_fraction": "3"},
		{"Component Name": "PVDF HSV900", "Value": 3},
		{"Component": "", "Value": 1}
	]`)
	got, err := ParseFormulationJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, []FormulationComponent{
		{Component: "Graphite", DryMassFractionPct: 94},
		{Component: "Super P", DryMassFractionPct: 3},
		{Component: "PVDF HSV900", DryMassFractionPct: 3},
	}, got)

	frac, ok := FormulationFraction(got, "super p")
	assert.True(t, ok)
	assert.Equal(t, 3.0, frac)

	_, err = ParseFormulationJSON([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}

func TestParseProjectType(t *testing.T) {
	for in, want := range map[string]ProjectType{
		"":          ProjectFullCell,
		"Full Cell": ProjectFullCell,
		"anode":     ProjectAnode,
		" Cathode ": ProjectCathode,
	} {
		got, err := ParseProjectType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseProjectType("separator")
	assert.Error(t, err)
}

func TestCycleRecord_JSONMissingValues(t *testing.T) {
	rec := CycleRecord{CycleIndex: 3, ChargeCapacity: 1.2, DischargeCapacity: math.NaN()}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cycle_index":3,"charge_capacity":1.2,"discharge_capacity":null}`, string(b))

	var back CycleRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 1.2, back.ChargeCapacity)
	assert.True(t, math.IsNaN(back.DischargeCapacity))

	require.NoError(t, json.Unmarshal([]byte(`{"cycle_index":1,"discharge_capacity":2.5}`), &back))
	assert.True(t, math.IsNaN(back.ChargeCapacity), "absent means missing")
	assert.Nil(t, back.Efficiency)
}
