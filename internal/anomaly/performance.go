package anomaly

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
	"cellscope/domain/flags"
	"cellscope/internal/metrics"
)

// Performance thresholds
const (
	rapidFadeCycle          = 10
	rapidFadeRetentionPct   = 80.0
	rapidFadeCriticalPct    = 70.0
	failureRetentionPct     = 50.0
	failureMaxCycles        = 50
	failureRecentWindow     = 5
	ceVariationMinMean      = 90.0
	ceVariationStdDev       = 5.0
	ceVariationCriticalStd  = 10.0
	lowCEMeanPct            = 95.0
	lowCECriticalPct        = 90.0
	ceMinRecords            = 10
	ceMinWindow             = 5
	accelMinPoints          = 20
	accelRatio              = 2.0
	accelMinLateRatePct     = 0.2
	firstCycleEfficiencyPct = 60.0
	firstCycleCriticalPct   = 40.0
)

// PerformanceFamily detects fade, failure and efficiency problems
func PerformanceFamily() Family {
	return Family{
		Name: "performance",
		Detectors: []Detector{
			{Name: "rapid_capacity_fade", Detect: detectRapidFade},
			{Name: "cell_failure", Detect: detectCellFailure},
			{Name: "high_ce_variation", Detect: detectCEVariation},
			{Name: "low_coulombic_efficiency", Detect: detectLowCE},
			{Name: "accelerating_degradation", Detect: detectAcceleratingDegradation},
			{Name: "poor_first_cycle_efficiency", Detect: detectFirstCycle},
		},
	}
}

func detectRapidFade(in *Input) ([]flags.Flag, error) {
	caps, cycles := present(in.Discharge, in.Cycles)
	if len(caps) < rapidFadeCycle {
		return nil, nil
	}
	initial := initialCapacity(caps)
	if initial <= 0 {
		return nil, nil
	}

	i := rapidFadeCycle - 1
	retention := caps[i] / initial * 100.0
	if retention >= rapidFadeRetentionPct {
		return nil, nil
	}

	sev, conf := flags.SeverityWarning, 0.85
	if retention < rapidFadeCriticalPct {
		sev, conf = flags.SeverityCritical, 0.95
	}
	return one(flags.Flag{
		ID:              "rapid_capacity_fade",
		Type:            "Rapid Capacity Fade",
		Severity:        sev,
		Category:        flags.CategoryPerformance,
		Description:     fmt.Sprintf("Cell shows rapid capacity loss: %.1f%% retention after %d cycles", retention, rapidFadeCycle),
		Confidence:      conf,
		SourceAlgorithm: "pattern_rapid_fade",
		Cycle:           cycling.Int(cycles[i]),
		Metric:          "retention_pct",
		MetricValue:     cycling.Float(retention),
		Threshold:       cycling.Float(rapidFadeRetentionPct),
		Recommendation:  "Check electrode processing quality, electrolyte compatibility and cycling conditions. Consider cell manufacturing defects.",
	}), nil
}

func detectCellFailure(in *Input) ([]flags.Flag, error) {
	caps, cycles := present(in.Discharge, in.Cycles)
	if len(caps) < failureRecentWindow || len(caps) >= failureMaxCycles {
		return nil, nil
	}
	initial := initialCapacity(caps)
	if initial <= 0 {
		return nil, nil
	}

	start := len(caps) - failureRecentWindow
	j := start + argmin(caps[start:])
	retention := caps[j] / initial * 100.0
	if retention >= failureRetentionPct {
		return nil, nil
	}
	return one(flags.Flag{
		ID:              "cell_failure",
		Type:            "Cell Failure",
		Severity:        flags.SeverityCritical,
		Category:        flags.CategoryPerformance,
		Description:     fmt.Sprintf("Cell failure detected: capacity dropped to %.1f%% of initial value", retention),
		Confidence:      0.98,
		SourceAlgorithm: "pattern_cell_failure",
		Cycle:           cycling.Int(cycles[j]),
		Metric:          "retention_pct",
		MetricValue:     cycling.Float(retention),
		Threshold:       cycling.Float(failureRetentionPct),
		Recommendation:  "Cell has failed. Check for internal short, dendrite formation or severe degradation. Data may not be reliable.",
	}), nil
}

// steadyEfficiency returns efficiency values after the formation window, or
// false when the series is too short to judge
func steadyEfficiency(in *Input) ([]float64, bool) {
	if len(in.Records) < ceMinRecords {
		return nil, false
	}
	fc := in.FormationCycles()
	if fc >= len(in.Efficiency) {
		return nil, false
	}
	window, _ := present(in.Efficiency[fc:], nil)
	if len(window) < ceMinWindow {
		return nil, false
	}
	return window, true
}

func detectCEVariation(in *Input) ([]flags.Flag, error) {
	window, ok := steadyEfficiency(in)
	if !ok {
		return nil, nil
	}
	mean, err := stats.Mean(window)
	if err != nil {
		return nil, err
	}
	sd, err := stats.StandardDeviationSample(window)
	if err != nil {
		return nil, err
	}
	if mean <= ceVariationMinMean || sd <= ceVariationStdDev {
		return nil, nil
	}

	sev, conf := flags.SeverityWarning, 0.80
	if sd > ceVariationCriticalStd {
		sev, conf = flags.SeverityCritical, 0.90
	}
	return one(flags.Flag{
		ID:              "high_ce_variation",
		Type:            "High CE Variation",
		Severity:        sev,
		Category:        flags.CategoryPerformance,
		Description:     fmt.Sprintf("High coulombic efficiency variation: %.1f%% std dev (mean: %.1f%%)", sd, mean),
		Confidence:      conf,
		SourceAlgorithm: "statistical_ce_variation",
		Metric:          "coulombic_efficiency_std",
		MetricValue:     cycling.Float(sd),
		Threshold:       cycling.Float(ceVariationStdDev),
		Recommendation:  "Check for inconsistent cycling conditions, temperature fluctuations or electrode stability issues.",
	}), nil
}

func detectLowCE(in *Input) ([]flags.Flag, error) {
	window, ok := steadyEfficiency(in)
	if !ok {
		return nil, nil
	}
	mean, err := stats.Mean(window)
	if err != nil {
		return nil, err
	}
	if mean >= lowCEMeanPct {
		return nil, nil
	}

	sev := flags.SeverityWarning
	if mean < lowCECriticalPct {
		sev = flags.SeverityCritical
	}
	return one(flags.Flag{
		ID:              "low_coulombic_efficiency",
		Type:            "Low Coulombic Efficiency",
		Severity:        sev,
		Category:        flags.CategoryPerformance,
		Description:     fmt.Sprintf("Consistently low coulombic efficiency: %.2f%% average", mean),
		Confidence:      0.95,
		SourceAlgorithm: "statistical_low_ce",
		Metric:          string(cycling.MetricCoulombicEfficiency),
		MetricValue:     cycling.Float(mean),
		Threshold:       cycling.Float(lowCEMeanPct),
		Recommendation:  "Low CE indicates side reactions or active material loss. Check electrolyte stability and the electrode-electrolyte interface.",
	}), nil
}

// segmentFadeRate is the regression slope of a capacity segment against its
// position, as percent of the segment's first value per cycle
func segmentFadeRate(caps []float64) (float64, bool) {
	if len(caps) < 2 || caps[0] <= 0 {
		return 0, false
	}
	xs := make([]float64, len(caps))
	for i := range xs {
		xs[i] = float64(i)
	}
	slope, ok := metrics.LinearSlope(xs, caps)
	if !ok {
		return 0, false
	}
	return math.Abs(slope/caps[0]) * 100.0, true
}

func detectAcceleratingDegradation(in *Input) ([]flags.Flag, error) {
	caps, _ := present(in.Discharge, in.Cycles)
	if len(caps) < accelMinPoints {
		return nil, nil
	}

	mid := len(caps) / 2
	early, okEarly := segmentFadeRate(caps[:mid])
	late, okLate := segmentFadeRate(caps[mid:])
	if !okEarly || !okLate {
		return nil, nil
	}
	if late <= early*accelRatio || late <= accelMinLateRatePct {
		return nil, nil
	}
	return one(flags.Flag{
		ID:              "accelerating_degradation",
		Type:            "Accelerating Degradation",
		Severity:        flags.SeverityWarning,
		Category:        flags.CategoryPerformance,
		Description:     fmt.Sprintf("Degradation rate increasing: early %.2f%%/cycle, late %.2f%%/cycle", early, late),
		Confidence:      0.85,
		SourceAlgorithm: "pattern_accelerating_fade",
		Metric:          "fade_rate_pct_per_cycle",
		MetricValue:     cycling.Float(late),
		Threshold:       cycling.Float(early * accelRatio),
		Recommendation:  "Accelerating degradation suggests a progressive failure mechanism. Check for dendrite growth or SEI instability.",
	}), nil
}

func detectFirstCycle(in *Input) ([]flags.Flag, error) {
	if len(in.Efficiency) == 0 || cycling.IsMissing(in.Efficiency[0]) {
		return nil, nil
	}
	first := in.Efficiency[0]
	if first >= firstCycleEfficiencyPct {
		return nil, nil
	}

	sev := flags.SeverityWarning
	if first < firstCycleCriticalPct {
		sev = flags.SeverityCritical
	}
	return one(flags.Flag{
		ID:              "poor_first_cycle_efficiency",
		Type:            "Poor First Cycle Efficiency",
		Severity:        sev,
		Category:        flags.CategoryPerformance,
		Description:     fmt.Sprintf("Very low first cycle efficiency: %.1f%%", first),
		Confidence:      0.90,
		SourceAlgorithm: "threshold_first_efficiency",
		Cycle:           cycling.Int(in.Cycles[0]),
		Metric:          string(cycling.MetricFirstEfficiency),
		MetricValue:     cycling.Float(first),
		Threshold:       cycling.Float(firstCycleEfficiencyPct),
		Recommendation:  "Low first cycle efficiency indicates excessive SEI formation or irreversible capacity loss. Check electrode surface area and electrolyte composition.",
	}), nil
}
