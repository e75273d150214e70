package anomaly

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/domain/flags"
	"cellscope/internal/testkit"
)

func healthy(cycles int) ([]cycling.CycleRecord, cycling.CellMetadata) {
	cfg := testkit.DefaultCycleConfig()
	cfg.Cycles = cycles
	return testkit.NewCycleGenerator(cfg).Generate(), testkit.CellMetadata("A1")
}

func find(fs []flags.Flag, id string) (flags.Flag, int, bool) {
	for i, f := range fs {
		if f.ID == id {
			return f, i, true
		}
	}
	return flags.Flag{}, -1, false
}

func ids(fs []flags.Flag) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}

func TestAnalyze_ImpossibleEfficiencyRanksFirst(t *testing.T) {
	records, meta := healthy(30)
	reported := 1.08
	records[5].ChargeCapacity = math.NaN()
	records[5].Efficiency = &reported

	fs, err := AnalyzeCellForFlags(records, meta, nil)
	require.NoError(t, err)

	f, pos, ok := find(fs, "impossible_efficiency")
	require.True(t, ok, "got %v", ids(fs))
	assert.Equal(t, 0, pos)
	assert.Equal(t, flags.SeverityCritical, f.Severity)
	assert.Equal(t, flags.CategoryElectrochemistry, f.Category)
	require.NotNil(t, f.Cycle)
	assert.Equal(t, 6, *f.Cycle)
	assert.InDelta(t, 108.0, *f.MetricValue, 1e-9)

	info, infoPos, ok := find(fs, "premature_termination")
	require.True(t, ok, "got %v", ids(fs))
	assert.Equal(t, flags.SeverityInfo, info.Severity)
	assert.Greater(t, infoPos, pos)
}

func TestAnalyze_EfficiencyTolerance(t *testing.T) {
	records, meta := healthy(30)
	records[5].DischargeCapacity = records[5].ChargeCapacity * 1.03

	engine := NewEngine(Settings{EfficiencyTolerancePct: 5})
	fs, err := engine.Analyze(records, meta, nil)
	require.NoError(t, err)
	_, _, ok := find(fs, "impossible_efficiency")
	assert.False(t, ok)

	fs, err = NewEngine(DefaultSettings()).Analyze(records, meta, nil)
	require.NoError(t, err)
	_, _, ok = find(fs, "impossible_efficiency")
	assert.True(t, ok)
}

func TestAnalyze_HealthyCellHasNoWarnings(t *testing.T) {
	records, meta := healthy(100)

	fs, err := AnalyzeCellForFlags(records, meta, nil)
	require.NoError(t, err)
	for _, f := range fs {
		assert.Equal(t, flags.SeverityInfo, f.Severity, "unexpected %s", f.ID)
	}
}

func TestAnalyze_InvalidSeries(t *testing.T) {
	_, meta := healthy(1)
	_, err := AnalyzeCellForFlags(nil, meta, nil)
	assert.ErrorIs(t, err, core.ErrEmptySeries)
}

type recordingLogger struct {
	messages []string
}

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func TestAnalyze_FailingDetectorIsIsolated(t *testing.T) {
	records, meta := healthy(30)
	logger := &recordingLogger{}

	ok := flags.Flag{ID: "ok", Severity: flags.SeverityInfo, Confidence: 0.5}
	family := Family{
		Name: "test",
		Detectors: []Detector{
			{Name: "panics", Detect: func(*Input) ([]flags.Flag, error) { panic("index out of range") }},
			{Name: "errors", Detect: func(*Input) ([]flags.Flag, error) {
				return []flags.Flag{{ID: "discarded"}}, errors.New("boom")
			}},
			{Name: "works", Detect: func(*Input) ([]flags.Flag, error) { return []flags.Flag{ok}, nil }},
		},
	}

	engine := NewEngine(DefaultSettings(), WithFamilies(family), WithLogger(logger))
	fs, err := engine.Analyze(records, meta, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, ids(fs))
	require.Len(t, logger.messages, 2)
	assert.Contains(t, logger.messages[0], "test/panics")
	assert.Contains(t, logger.messages[1], "boom")
}

func TestAnalyze_NoDeduplication(t *testing.T) {
	records, meta := healthy(30)
	same := func(*Input) ([]flags.Flag, error) {
		return []flags.Flag{{ID: "dup", Severity: flags.SeverityWarning, Confidence: 0.7}}, nil
	}
	engine := NewEngine(DefaultSettings(), WithFamilies(
		Family{Name: "a", Detectors: []Detector{{Name: "one", Detect: same}}},
		Family{Name: "b", Detectors: []Detector{{Name: "two", Detect: same}}},
	))

	fs, err := engine.Analyze(records, meta, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dup", "dup"}, ids(fs))
}

func TestPerformanceDetectors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*testkit.CycleGeneratorConfig)
		id       string
		severity flags.Severity
	}{
		{
			name:     "rapid fade",
			mutate:   func(c *testkit.CycleGeneratorConfig) { c.FadePerCycle = 0.04; c.Cycles = 20 },
			id:       "rapid_capacity_fade",
			severity: flags.SeverityCritical,
		},
		{
			name:     "early failure",
			mutate:   func(c *testkit.CycleGeneratorConfig) { c.Cycles = 20; c.FailAtCycle = 15 },
			id:       "cell_failure",
			severity: flags.SeverityCritical,
		},
		{
			name:     "low coulombic efficiency",
			mutate:   func(c *testkit.CycleGeneratorConfig) { c.SteadyEfficiency = 0.92 },
			id:       "low_coulombic_efficiency",
			severity: flags.SeverityWarning,
		},
		{
			name:     "poor first cycle",
			mutate:   func(c *testkit.CycleGeneratorConfig) { c.FirstCycleEfficiency = 0.5 },
			id:       "poor_first_cycle_efficiency",
			severity: flags.SeverityWarning,
		},
		{
			name:     "very poor first cycle",
			mutate:   func(c *testkit.CycleGeneratorConfig) { c.FirstCycleEfficiency = 0.3 },
			id:       "poor_first_cycle_efficiency",
			severity: flags.SeverityCritical,
		},
		{
			name:     "missing data",
			mutate:   func(c *testkit.CycleGeneratorConfig) { c.MissingEvery = 3 },
			id:       "missing_data",
			severity: flags.SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testkit.DefaultCycleConfig()
			tt.mutate(&cfg)

			fs, err := AnalyzeCellForFlags(testkit.NewCycleGenerator(cfg).Generate(), testkit.CellMetadata("P1"), nil)
			require.NoError(t, err)
			f, _, ok := find(fs, tt.id)
			require.True(t, ok, "got %v", ids(fs))
			assert.Equal(t, tt.severity, f.Severity)
		})
	}
}

func TestDetectCEVariation(t *testing.T) {
	records, meta := healthy(20)
	for i := 4; i < len(records); i += 2 {
		records[i].DischargeCapacity = records[i].ChargeCapacity * 0.88
	}

	fs, err := AnalyzeCellForFlags(records, meta, nil)
	require.NoError(t, err)
	f, _, ok := find(fs, "high_ce_variation")
	require.True(t, ok, "got %v", ids(fs))
	assert.Equal(t, flags.SeverityWarning, f.Severity)
}

func TestDetectAcceleratingDegradation(t *testing.T) {
	cfg := testkit.DefaultCycleConfig()
	cfg.Cycles = 40
	cfg.FadePerCycle = 0
	records := testkit.NewCycleGenerator(cfg).Generate()
	for i := 20; i < 40; i++ {
		records[i].DischargeCapacity = 3.0 * (1 - 0.01*float64(i-19))
		records[i].ChargeCapacity = records[i].DischargeCapacity / 0.995
	}

	fs, err := AnalyzeCellForFlags(records, testkit.CellMetadata("D1"), nil)
	require.NoError(t, err)
	f, _, ok := find(fs, "accelerating_degradation")
	require.True(t, ok, "got %v", ids(fs))
	assert.Greater(t, *f.MetricValue, 0.2)
}

func TestDataIntegrityDetectors(t *testing.T) {
	t.Run("cycle gap", func(t *testing.T) {
		records, meta := healthy(30)
		records = append(records[:4], records[7:]...)

		fs, err := AnalyzeCellForFlags(records, meta, nil)
		require.NoError(t, err)
		f, _, ok := find(fs, "cycle_index_gap")
		require.True(t, ok)
		assert.Equal(t, 5, *f.Cycle)
		assert.Equal(t, 3.0, *f.MetricValue)
	})

	t.Run("zero and negative capacities", func(t *testing.T) {
		records, meta := healthy(30)
		for _, i := range []int{10, 11, 12, 13} {
			records[i].DischargeCapacity = 0
		}
		records[20].DischargeCapacity = -0.1

		fs, err := AnalyzeCellForFlags(records, meta, nil)
		require.NoError(t, err)
		f, _, ok := find(fs, "data_inconsistency")
		require.True(t, ok)
		assert.Contains(t, f.Description, "1 negative")
		assert.Contains(t, f.Description, "4 zero")
	})

	t.Run("short healthy test", func(t *testing.T) {
		records, meta := healthy(12)

		fs, err := AnalyzeCellForFlags(records, meta, nil)
		require.NoError(t, err)
		f, _, ok := find(fs, "incomplete_dataset")
		require.True(t, ok)
		assert.Equal(t, flags.SeverityInfo, f.Severity)
	})
}

func TestTheoreticalCapacityViolation(t *testing.T) {
	records, meta := healthy(30)
	meta.LoadingMg = 1

	fs, err := AnalyzeCellForFlags(records, meta, nil)
	require.NoError(t, err)
	f, _, ok := find(fs, "theoretical_capacity_violation")
	require.True(t, ok)
	assert.Equal(t, 372.0, *f.Threshold)
	assert.Contains(t, f.Description, "Graphite")
}

func TestCeilingFor(t *testing.T) {
	table := DefaultCapacityCeilings()

	c, material := CeilingFor([]cycling.FormulationComponent{
		{Component: "Silicon nanoparticles", DryMassFractionPct: 20},
		{Component: "Graphite SLP30", DryMassFractionPct: 70},
	}, table, DefaultCapacityCeiling)
	assert.Equal(t, 372.0, c)
	assert.Equal(t, "Graphite SLP30", material)

	c, _ = CeilingFor([]cycling.FormulationComponent{{Component: "NMC811", DryMassFractionPct: 94}}, table, DefaultCapacityCeiling)
	assert.Equal(t, 275.0, c)

	c, material = CeilingFor([]cycling.FormulationComponent{{Component: "Mystery", DryMassFractionPct: 100}}, table, DefaultCapacityCeiling)
	assert.Equal(t, DefaultCapacityCeiling, c)
	assert.Empty(t, material)
}

func TestCohortOutlier(t *testing.T) {
	records, meta := healthy(30)
	meta.LoadingMg = 24 // halves specific capacity

	var cells []cycling.CellMetricBundle
	for i, v := range []float64{270, 272, 271, 273} {
		cells = append(cells, cycling.CellMetricBundle{
			CellID:         core.CellID(fmt.Sprintf("peer-%d", i)),
			FirstDischarge: cycling.Float(v),
		})
	}
	cohort := cycling.NewCohortContext("synthetic", cells)

	fs, err := AnalyzeCellForFlags(records, meta, &cohort)
	require.NoError(t, err)
	f, _, ok := find(fs, "cohort_statistical_outlier")
	require.True(t, ok, "got %v", ids(fs))
	assert.Equal(t, string(cycling.MetricFirstDischarge), f.Metric)
	assert.Equal(t, flags.SeverityWarning, f.Severity)
	assert.Contains(t, f.Description, "low")

	fs, err = AnalyzeCellForFlags(records, meta, nil)
	require.NoError(t, err)
	_, _, ok = find(fs, "cohort_statistical_outlier")
	assert.False(t, ok)
}

func TestCohortOutlier_SmallCohortIsSilent(t *testing.T) {
	records, meta := healthy(30)
	meta.LoadingMg = 24
	cohort := cycling.NewCohortContext("tiny", []cycling.CellMetricBundle{
		{CellID: "p1", FirstDischarge: cycling.Float(270)},
		{CellID: "p2", FirstDischarge: cycling.Float(272)},
	})

	fs, err := AnalyzeCellForFlags(records, meta, &cohort)
	require.NoError(t, err)
	_, _, ok := find(fs, "cohort_statistical_outlier")
	assert.False(t, ok)
}

func TestCohortSample_CountsCellOnce(t *testing.T) {
	peers := []cycling.CellMetricBundle{
		{CellID: "p1", FirstDischarge: cycling.Float(270)},
		{CellID: "p2", FirstDischarge: cycling.Float(272)},
	}

	tests := []struct {
		name     string
		self     cycling.CellMetricBundle
		inCohort bool
		wantLen  int
		wantSelf int
	}{
		{"matched by id", cycling.CellMetricBundle{CellID: "s1", CellName: "S1"}, true, 3, 2},
		{"matched by name without id", cycling.CellMetricBundle{CellName: "S1"}, true, 3, 2},
		{"absent from cohort", cycling.CellMetricBundle{CellID: "s1"}, false, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := append([]cycling.CellMetricBundle(nil), peers...)
			if tt.inCohort {
				member := tt.self
				member.FirstDischarge = cycling.Float(100)
				cells = append(cells, member)
			}
			values, self := cohortSample(cells, tt.self, cycling.MetricFirstDischarge, 150)
			assert.Len(t, values, tt.wantLen)
			assert.Equal(t, tt.wantSelf, self)
			assert.Equal(t, 150.0, values[self])
		})
	}

	values, self := cohortSample([]cycling.CellMetricBundle{
		{CellID: "p3", CellName: "S1", FirstDischarge: cycling.Float(100)},
	}, cycling.CellMetricBundle{CellID: "s1", CellName: "S1"}, cycling.MetricFirstDischarge, 150)
	assert.Equal(t, []float64{100, 150}, values, "a shared name does not match across different ids")
	assert.Equal(t, 1, self)

	values, self = cohortSample([]cycling.CellMetricBundle{
		{CellName: "S1", FirstDischarge: cycling.Float(150)},
		{CellName: "S2", FirstDischarge: cycling.Float(151)},
	}, cycling.CellMetricBundle{CellName: "S2"}, cycling.MetricFirstDischarge, 151)
	assert.Equal(t, []float64{150, 151}, values)
	assert.Equal(t, 1, self)
}
