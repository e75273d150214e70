package anomaly

import (
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
	"cellscope/domain/flags"
)

// Data-integrity thresholds
const (
	incompleteMinCycles    = 5
	incompleteMaxCycles    = 30
	incompleteRetentionPct = 80.0
	prematureMinCycles     = 10
	prematureMaxVariation  = 0.05
	prematureRetentionPct  = 70.0
	missingDataFraction    = 0.20
	zeroCapacityFraction   = 0.10
	prematureTailLength    = 5
)

// DataIntegrityFamily detects short, sparse or internally inconsistent data
func DataIntegrityFamily() Family {
	return Family{
		Name: "data_integrity",
		Detectors: []Detector{
			{Name: "incomplete_dataset", Detect: detectIncomplete},
			{Name: "missing_data", Detect: detectMissingData},
			{Name: "cycle_index_gap", Detect: detectCycleGaps},
			{Name: "data_inconsistency", Detect: detectInconsistency},
		},
	}
}

// detectIncomplete flags tests that stopped while the cell was still healthy
func detectIncomplete(in *Input) ([]flags.Flag, error) {
	caps, _ := present(in.Discharge, in.Cycles)
	if len(in.Records) < incompleteMinCycles || len(caps) < incompleteMinCycles {
		return nil, nil
	}

	initial := initialCapacity(caps)
	retention := 100.0
	if initial > 0 {
		retention = caps[len(caps)-1] / initial * 100.0
	}

	if retention > incompleteRetentionPct && len(caps) < incompleteMaxCycles {
		return one(flags.Flag{
			ID:              "incomplete_dataset",
			Type:            "Incomplete Dataset",
			Severity:        flags.SeverityInfo,
			Category:        flags.CategoryDataIntegrity,
			Description:     fmt.Sprintf("Dataset appears incomplete: only %d cycles with %.1f%% capacity retention", len(caps), retention),
			Confidence:      0.75,
			SourceAlgorithm: "heuristic_incomplete_data",
			Metric:          "cycle_count",
			MetricValue:     cycling.Float(float64(len(caps))),
			Threshold:       cycling.Float(incompleteMaxCycles),
			Recommendation:  "Cell stopped early, so data may not reflect full cycle life. Consider continuing the test or marking it as preliminary.",
		}), nil
	}

	if len(caps) <= prematureMinCycles {
		return nil, nil
	}
	tail := caps[len(caps)-prematureTailLength:]
	mean, err := stats.Mean(tail)
	if err != nil {
		return nil, err
	}
	variation := 0.0
	if mean > 0 {
		sd, err := stats.StandardDeviationSample(tail)
		if err != nil {
			return nil, err
		}
		variation = sd / mean
	}
	if variation >= prematureMaxVariation || retention <= prematureRetentionPct {
		return nil, nil
	}
	return one(flags.Flag{
		ID:              "premature_termination",
		Type:            "Premature Termination",
		Severity:        flags.SeverityInfo,
		Category:        flags.CategoryDataIntegrity,
		Description:     fmt.Sprintf("Test terminated prematurely: %d cycles completed with stable capacity", len(caps)),
		Confidence:      0.80,
		SourceAlgorithm: "pattern_premature_stop",
		Metric:          "retention_pct",
		MetricValue:     cycling.Float(retention),
		Recommendation:  "Cell was stopped while still performing well. Cycle life data incomplete.",
	}), nil
}

func detectMissingData(in *Input) ([]flags.Flag, error) {
	columns := []struct {
		name   string
		values []float64
	}{
		{"discharge capacity", in.Discharge},
		{"charge capacity", in.Charge},
		{"efficiency", in.Efficiency},
	}

	var parts []string
	worst := 0.0
	for _, c := range columns {
		frac := missingFraction(c.values)
		if frac > missingDataFraction {
			parts = append(parts, fmt.Sprintf("%s: %.0f%% missing", c.name, frac*100))
			if frac > worst {
				worst = frac
			}
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return one(flags.Flag{
		ID:              "missing_data",
		Type:            "Missing Data",
		Severity:        flags.SeverityWarning,
		Category:        flags.CategoryDataIntegrity,
		Description:     "Significant missing data: " + strings.Join(parts, ", "),
		Confidence:      1.0,
		SourceAlgorithm: "data_completeness_check",
		Metric:          "missing_pct",
		MetricValue:     cycling.Float(worst * 100),
		Threshold:       cycling.Float(missingDataFraction * 100),
		Recommendation:  "Missing data may affect analysis accuracy. Check the data acquisition system.",
	}), nil
}

// detectCycleGaps flags cycle numbers skipped between recorded cycles
func detectCycleGaps(in *Input) ([]flags.Flag, error) {
	missing := 0
	first := 0
	for i := 1; i < len(in.Cycles); i++ {
		gap := in.Cycles[i] - in.Cycles[i-1] - 1
		if gap <= 0 {
			continue
		}
		if missing == 0 {
			first = in.Cycles[i-1] + 1
		}
		missing += gap
	}
	if missing == 0 {
		return nil, nil
	}
	return one(flags.Flag{
		ID:              "cycle_index_gap",
		Type:            "Cycle Index Gap",
		Severity:        flags.SeverityInfo,
		Category:        flags.CategoryDataIntegrity,
		Description:     fmt.Sprintf("%d cycle numbers missing from the series, first at cycle %d", missing, first),
		Confidence:      0.90,
		SourceAlgorithm: "data_continuity_check",
		Cycle:           cycling.Int(first),
		Metric:          "missing_cycles",
		MetricValue:     cycling.Float(float64(missing)),
		Recommendation:  "Check whether the cycler export dropped rows or the test was paused.",
	}), nil
}

func detectInconsistency(in *Input) ([]flags.Flag, error) {
	negative, zero := 0, 0
	for _, v := range in.Discharge {
		switch {
		case cycling.IsMissing(v):
		case v < 0:
			negative++
		case v == 0:
			zero++
		}
	}

	var issues []string
	if negative > 0 {
		issues = append(issues, fmt.Sprintf("%d negative discharge capacity values", negative))
	}
	if float64(zero) > float64(len(in.Discharge))*zeroCapacityFraction {
		issues = append(issues, fmt.Sprintf("%d zero capacity values", zero))
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return one(flags.Flag{
		ID:              "data_inconsistency",
		Type:            "Data Inconsistency",
		Severity:        flags.SeverityWarning,
		Category:        flags.CategoryDataIntegrity,
		Description:     "Data inconsistencies detected: " + strings.Join(issues, ", "),
		Confidence:      1.0,
		SourceAlgorithm: "data_validation",
		Recommendation:  "Check raw data files for corruption or processing errors.",
	}), nil
}
