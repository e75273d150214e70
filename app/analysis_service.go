package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/domain/flags"
	"cellscope/internal"
	"cellscope/internal/anomaly"
	"cellscope/internal/errors"
	"cellscope/internal/metrics"
	"cellscope/internal/outlier"
	"cellscope/ports"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers bounds per-cell fan-out when no worker count is configured
	DefaultWorkers = 4
	// DefaultCacheSize bounds the number of memoised bundles
	DefaultCacheSize = 1024
)

// ServiceConfig tunes the analysis service
type ServiceConfig struct {
	FormationCyclesDefault int
	KneeThreshold          float64
	Workers                int
	CacheSize              int
	Outliers               outlier.Settings
	Anomaly                anomaly.Settings
}

// DefaultServiceConfig returns the calculator, filter and engine defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		FormationCyclesDefault: cycling.DefaultFormationCycles,
		KneeThreshold:          metrics.DefaultKneeThreshold,
		Workers:                DefaultWorkers,
		CacheSize:              DefaultCacheSize,
		Outliers:               outlier.DefaultSettings(),
		Anomaly:                anomaly.DefaultSettings(),
	}
}

// CellResult is one cell's bundle and flags
type CellResult struct {
	Bundle   cycling.CellMetricBundle `json:"bundle"`
	Flags    []flags.Flag             `json:"flags"`
	Summary  string                   `json:"flag_summary"`
	Excluded bool                     `json:"excluded"`
}

// SkippedCell is a cohort member whose series could not be analysed
type SkippedCell struct {
	CellID core.CellID `json:"cell_id"`
	Reason string      `json:"reason"`
}

// CohortResult is the outcome of one cohort analysis run
type CohortResult struct {
	RunID    core.RunID                  `json:"run_id"`
	Scope    string                      `json:"scope"`
	Cells    []CellResult                `json:"cells"`
	Skipped  []SkippedCell               `json:"skipped,omitempty"`
	Outliers outlier.Report              `json:"outliers"`
	Averages []metrics.ExperimentAverage `json:"averages"`
	Summary  flags.Summary               `json:"summary"`
	Duration time.Duration               `json:"duration_ns"`
}

// AnalysisService loads cells through the ports, computes bundles in
// parallel, then runs the cohort-dependent passes once every bundle exists
type AnalysisService struct {
	cells   ports.ExperimentRepository
	cohorts ports.CohortLookup
	store   ports.AnalysisStore

	config     ServiceConfig
	calculator *metrics.Calculator
	engine     *anomaly.Engine
	logger     *internal.Logger

	memo *lru.Cache[core.Hash, cycling.CellMetricBundle]
}

// NewAnalysisService creates an analysis service. store may be nil, in which
// case results are not persisted.
func NewAnalysisService(cells ports.ExperimentRepository, cohorts ports.CohortLookup, store ports.AnalysisStore, config ServiceConfig) *AnalysisService {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}
	memo, _ := lru.New[core.Hash, cycling.CellMetricBundle](config.CacheSize)
	logger := internal.DefaultLogger.WithComponent("analysis")
	calculator := metrics.NewCalculator()
	if config.KneeThreshold > 0 {
		calculator.KneeThreshold = config.KneeThreshold
	}
	return &AnalysisService{
		cells:      cells,
		cohorts:    cohorts,
		store:      store,
		config:     config,
		calculator: calculator,
		engine:     anomaly.NewEngine(config.Anomaly, anomaly.WithLogger(logger), anomaly.WithCalculator(calculator)),
		logger:     logger,
		memo:       memo,
	}
}

// AnalyzeCell computes one cell's bundle and cohort-independent flags
func (s *AnalysisService) AnalyzeCell(ctx context.Context, id core.CellID) (*CellResult, error) {
	data, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.AnalyzeData(data)
	if err != nil {
		return nil, errors.Wrapf(err, "cell %s", id)
	}

	if s.store != nil {
		record := ports.AnalysisRecord{
			RunID:     core.NewRunID(),
			CellID:    id,
			Scope:     "cell",
			Bundle:    result.Bundle,
			Flags:     result.Flags,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.SaveAnalyses(ctx, []ports.AnalysisRecord{record}); err != nil {
			return nil, errors.Wrap(err, "failed to save analysis")
		}
	}
	return result, nil
}

// AnalyzeData analyses a series supplied by the caller rather than loaded
// from the repository. Nothing is persisted.
func (s *AnalysisService) AnalyzeData(data cycling.CellData) (*CellResult, error) {
	s.applyFormationDefault(&data.Metadata)
	bundle, err := s.bundle(data)
	if err != nil {
		return nil, err
	}
	fs, err := s.engine.Analyze(data.Cycles, data.Metadata, nil)
	if err != nil {
		return nil, err
	}
	return &CellResult{Bundle: bundle, Flags: fs, Summary: flags.FormatCompact(fs)}, nil
}

// LatestAnalysis returns the most recent stored result for a cell
func (s *AnalysisService) LatestAnalysis(ctx context.Context, id core.CellID) (*ports.AnalysisRecord, error) {
	if s.store == nil {
		return nil, errors.NotFound("analysis store")
	}
	return s.store.LatestAnalysis(ctx, id)
}

type cohortMember struct {
	data   cycling.CellData
	bundle cycling.CellMetricBundle
	err    error
}

// AnalyzeCohort analyses every cell in scope. Bundles are computed in
// parallel; outlier filtering and flagging wait for all of them. Cells with an
// unusable series are skipped, any other failure aborts the run.
func (s *AnalysisService) AnalyzeCohort(ctx context.Context, scope ports.CohortScope) (*CohortResult, error) {
	start := time.Now()
	ids, err := s.cohorts.CohortCells(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve cohort")
	}
	if len(ids) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("cells for scope %s", scope))
	}
	s.logger.Info("analysing %d cells in %s", len(ids), scope)

	members := make([]cohortMember, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			data, err := s.load(gctx, id)
			if err != nil {
				return err
			}
			bundle, err := s.bundle(data)
			members[i] = cohortMember{data: data, bundle: bundle, err: err}
			if err != nil && !core.IsInvalidSeriesError(err) {
				return errors.Wrapf(err, "cell %s", id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &CohortResult{RunID: core.NewRunID(), Scope: scope.String()}
	var valid []cohortMember
	for i, m := range members {
		if m.err != nil {
			s.logger.Warn("skipping cell %s: %v", ids[i], m.err)
			result.Skipped = append(result.Skipped, SkippedCell{CellID: ids[i], Reason: m.err.Error()})
			continue
		}
		valid = append(valid, m)
	}

	bundles := make([]cycling.CellMetricBundle, len(valid))
	for i, m := range valid {
		bundles[i] = m.bundle
	}
	cohort := cycling.NewCohortContext(result.Scope, bundles)
	filtered, report := outlier.FilterOutliers(cohort, s.config.Outliers)
	result.Outliers = report

	result.Cells = make([]CellResult, len(valid))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, m := range valid {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fs, err := s.engine.Analyze(m.data.Cycles, m.data.Metadata, &cohort)
			if err != nil {
				return errors.Wrapf(err, "cell %s", m.bundle.CellID)
			}
			result.Cells[i] = CellResult{
				Bundle:   m.bundle,
				Flags:    fs,
				Summary:  flags.FormatCompact(fs),
				Excluded: report.IsExcluded(m.bundle.CellID.String()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byCell := make(map[string][]flags.Flag, len(result.Cells))
	for _, c := range result.Cells {
		byCell[c.Bundle.DisplayName()] = c.Flags
	}
	result.Summary = flags.Summarize(byCell)
	result.Averages = averagesByExperiment(filtered.Cells)
	result.Duration = time.Since(start)

	if err := s.persist(ctx, result); err != nil {
		return nil, err
	}
	s.logger.Info("cohort %s done in %s: %d cells, %d excluded, %s", result.Scope, result.Duration,
		len(result.Cells), len(report.Excluded), summaryLine(result.Summary))
	return result, nil
}

// Porosity returns the porosity breakdown for a stored cell
func (s *AnalysisService) Porosity(ctx context.Context, id core.CellID) (*PorosityResult, error) {
	data, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return ComputePorosity(data.Metadata, s.calculator.Porosity)
}

func (s *AnalysisService) load(ctx context.Context, id core.CellID) (cycling.CellData, error) {
	data, err := s.cells.LoadCell(ctx, id)
	if err != nil {
		return cycling.CellData{}, errors.Wrapf(err, "failed to load cell %s", id)
	}
	s.applyFormationDefault(&data.Metadata)
	return data, nil
}

// applyFormationDefault fills a missing formation window from config. Zero is
// a valid window; only negative values leave the built-in default in place.
func (s *AnalysisService) applyFormationDefault(meta *cycling.CellMetadata) {
	if meta.FormationCycles == nil && s.config.FormationCyclesDefault >= 0 {
		meta.FormationCycles = cycling.Int(s.config.FormationCyclesDefault)
	}
}

// bundle memoises on the series hash and every metadata field the bundle
// depends on. The cache is least-recently-used and bounded by CacheSize.
func (s *AnalysisService) bundle(data cycling.CellData) (cycling.CellMetricBundle, error) {
	key := cycling.BundleKey(data)
	if cached, ok := s.memo.Get(key); ok {
		return cached, nil
	}

	b, err := s.calculator.Compute(data.Cycles, data.Metadata)
	if err != nil {
		return cycling.CellMetricBundle{}, err
	}
	s.memo.Add(key, b)
	return b, nil
}

func (s *AnalysisService) persist(ctx context.Context, result *CohortResult) error {
	if s.store == nil || len(result.Cells) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]ports.AnalysisRecord, len(result.Cells))
	for i, c := range result.Cells {
		records[i] = ports.AnalysisRecord{
			RunID:     result.RunID,
			CellID:    c.Bundle.CellID,
			Scope:     result.Scope,
			Bundle:    c.Bundle,
			Flags:     c.Flags,
			Excluded:  c.Excluded,
			CreatedAt: now,
		}
	}
	if err := s.store.SaveAnalyses(ctx, records); err != nil {
		return errors.Wrap(err, "failed to save cohort analysis")
	}
	return nil
}

func averagesByExperiment(bundles []cycling.CellMetricBundle) []metrics.ExperimentAverage {
	groups := make(map[string][]cycling.CellMetricBundle)
	for _, b := range bundles {
		groups[b.ExperimentName] = append(groups[b.ExperimentName], b)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]metrics.ExperimentAverage, 0, len(names))
	for _, name := range names {
		if avg := metrics.AverageExperiment(name, groups[name]); avg != nil {
			out = append(out, *avg)
		}
	}
	return out
}

func summaryLine(s flags.Summary) string {
	return fmt.Sprintf("critical:%d warning:%d info:%d", s.Critical, s.Warning, s.Info)
}
