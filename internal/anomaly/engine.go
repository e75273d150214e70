// Package anomaly runs independent detector families over one cell and
// returns their flags ranked by severity and confidence.
package anomaly

import (
	"fmt"

	"cellscope/domain/cycling"
	"cellscope/domain/flags"
	"cellscope/internal/metrics"
	"cellscope/internal/outlier"
)

// Input is everything a detector may look at. Series are aligned with Records,
// which are already normalised.
type Input struct {
	Records    []cycling.CycleRecord
	Meta       cycling.CellMetadata
	Cycles     []int
	Discharge  []float64 // mA·h
	Charge     []float64 // mA·h
	Specific   []float64 // mAh/g, NaN when the active mass is unknown
	Efficiency []float64 // percent, project-type convention
	Bundle     cycling.CellMetricBundle
	Cohort     *cycling.CohortContext
	Settings   Settings
}

// FormationCycles is the cell's formation window
func (in *Input) FormationCycles() int {
	return in.Meta.FormationCyclesOrDefault()
}

// Detector produces zero or more flags for one cell
type Detector struct {
	Name   string
	Detect func(in *Input) ([]flags.Flag, error)
}

// Family groups detectors that look at the same kind of evidence
type Family struct {
	Name      string
	Detectors []Detector
	// NeedsCohort families only run when a cohort context is supplied
	NeedsCohort bool
}

// Settings tune the physics and cohort detectors
type Settings struct {
	// EfficiencyTolerancePct is added to 100% before an efficiency counts as impossible
	EfficiencyTolerancePct float64
	// CapacityCeilings overrides or extends the theoretical capacity table
	CapacityCeilings []CapacityCeiling
	DefaultCeiling   float64
	CohortMethod     outlier.Method
	CohortThreshold  float64
}

// DefaultSettings flags any efficiency above 100% and uses IQR for cohorts
func DefaultSettings() Settings {
	return Settings{
		DefaultCeiling:  DefaultCapacityCeiling,
		CohortMethod:    outlier.MethodIQR,
		CohortThreshold: outlier.DefaultIQRMultiplier,
	}
}

// Logger receives isolated detector failures
type Logger interface {
	Warn(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...interface{}) {}

// Engine runs detector families. It holds configuration only; every call to
// Analyze is independent.
type Engine struct {
	families   []Family
	settings   Settings
	calculator *metrics.Calculator
	logger     Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger reports detector failures to l
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFamilies replaces the default detector families
func WithFamilies(families ...Family) Option {
	return func(e *Engine) { e.families = families }
}

// WithCalculator sets the calculator used to build the cell's own bundle
func WithCalculator(c *metrics.Calculator) Option {
	return func(e *Engine) {
		if c != nil {
			e.calculator = c
		}
	}
}

// DefaultFamilies returns the four built-in families in run order
func DefaultFamilies() []Family {
	return []Family{
		PerformanceFamily(),
		DataIntegrityFamily(),
		ElectrochemistryFamily(),
		CohortFamily(),
	}
}

// NewEngine builds an engine with the default families
func NewEngine(settings Settings, opts ...Option) *Engine {
	if settings.DefaultCeiling <= 0 {
		settings.DefaultCeiling = DefaultCapacityCeiling
	}
	if settings.CohortMethod == "" {
		settings.CohortMethod = outlier.MethodIQR
	}
	e := &Engine{
		families:   DefaultFamilies(),
		settings:   settings,
		calculator: metrics.NewCalculator(),
		logger:     nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine(DefaultSettings())

// AnalyzeCellForFlags runs the default engine. cohort may be nil.
func AnalyzeCellForFlags(cycles []cycling.CycleRecord, meta cycling.CellMetadata, cohort *cycling.CohortContext) ([]flags.Flag, error) {
	return defaultEngine.Analyze(cycles, meta, cohort)
}

// Analyze returns every family's flags, concatenated and sorted by severity
// then confidence. Only an unusable series is an error.
func (e *Engine) Analyze(cycles []cycling.CycleRecord, meta cycling.CellMetadata, cohort *cycling.CohortContext) ([]flags.Flag, error) {
	in, err := e.newInput(cycles, meta, cohort)
	if err != nil {
		return nil, err
	}
	return e.AnalyzeInput(in), nil
}

// AnalyzeInput runs the families over a prepared input
func (e *Engine) AnalyzeInput(in *Input) []flags.Flag {
	var out []flags.Flag
	for _, fam := range e.families {
		if fam.NeedsCohort && in.Cohort == nil {
			continue
		}
		for _, d := range fam.Detectors {
			out = append(out, e.run(fam.Name, d, in)...)
		}
	}
	flags.Sort(out)
	return out
}

func (e *Engine) run(family string, d Detector, in *Input) (out []flags.Flag) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("anomaly: detector %s/%s panicked on cell %s: %v", family, d.Name, in.Meta.CellID, r)
			out = nil
		}
	}()

	fs, err := d.Detect(in)
	if err != nil {
		e.logger.Warn("anomaly: detector %s/%s failed on cell %s: %v", family, d.Name, in.Meta.CellID, err)
		return nil
	}
	return fs
}

func (e *Engine) newInput(cycles []cycling.CycleRecord, meta cycling.CellMetadata, cohort *cycling.CohortContext) (*Input, error) {
	records, err := cycling.NormalizeSeries(cycles)
	if err != nil {
		return nil, err
	}
	bundle, err := e.calculator.Compute(records, meta)
	if err != nil {
		return nil, fmt.Errorf("compute bundle: %w", err)
	}

	charge := make([]float64, len(records))
	for i, r := range records {
		charge[i] = r.ChargeCapacity
	}
	return &Input{
		Records:    records,
		Meta:       meta,
		Cycles:     cycling.CycleIndices(records),
		Discharge:  cycling.DischargeSeries(records),
		Charge:     charge,
		Specific:   cycling.SpecificDischargeSeries(records, meta),
		Efficiency: cycling.EfficiencySeries(records, meta.ProjectType),
		Bundle:     bundle,
		Cohort:     cohort,
		Settings:   e.settings,
	}, nil
}
