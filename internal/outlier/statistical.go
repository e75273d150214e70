package outlier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"cellscope/domain/cycling"
)

// Method selects the statistical outlier test
type Method string

const (
	MethodIQR    Method = "iqr"
	MethodZScore Method = "zscore"
)

// Default thresholds per method
const (
	DefaultIQRMultiplier   = 1.5
	DefaultZScoreThreshold = 2.0
)

// ParseMethod accepts "iqr" or "zscore"; empty means iqr
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodIQR:
		return MethodIQR, nil
	case MethodZScore, "z-score", "z":
		return MethodZScore, nil
	}
	return "", fmt.Errorf("unknown outlier method %q", s)
}

// DefaultThreshold returns the conventional threshold for the method
func (m Method) DefaultThreshold() float64 {
	if m == MethodZScore {
		return DefaultZScoreThreshold
	}
	return DefaultIQRMultiplier
}

// Percentile returns the p-th percentile (0-100) of sorted values using linear
// interpolation between closest ranks
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := (float64(n) - 1) * p / 100.0
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	if i < 0 {
		return sorted[0]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Detection is the outcome of a statistical test on one value
type Detection struct {
	Index  int
	Value  float64
	Score  float64 // |z| for z-score, 0 for IQR
	Lower  float64
	Upper  float64
	Reason string
}

// Detect runs the chosen test over values and returns the outlying ones in
// input order. Fewer than MinCohortSamples values yields no detections.
func Detect(values []float64, method Method, threshold float64) []Detection {
	if len(values) < cycling.MinCohortSamples {
		return nil
	}
	if threshold <= 0 {
		threshold = method.DefaultThreshold()
	}
	if method == MethodZScore {
		return detectZScore(values, threshold)
	}
	return detectIQR(values, threshold)
}

// IQRBounds returns Q1 − k·IQR and Q3 + k·IQR
func IQRBounds(values []float64, k float64) (lower, upper float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}

func detectIQR(values []float64, k float64) []Detection {
	lower, upper := IQRBounds(values, k)

	var out []Detection
	for i, v := range values {
		if v < lower || v > upper {
			out = append(out, Detection{
				Index:  i,
				Value:  v,
				Lower:  lower,
				Upper:  upper,
				Reason: fmt.Sprintf("Statistical outlier (IQR method, threshold=%g)", k),
			})
		}
	}
	return out
}

func detectZScore(values []float64, threshold float64) []Detection {
	mean, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	sd, err := stats.StandardDeviationPopulation(values)
	if err != nil || sd <= 0 {
		return nil
	}

	var out []Detection
	for i, v := range values {
		z := math.Abs((v - mean) / sd)
		if z > threshold {
			out = append(out, Detection{
				Index:  i,
				Value:  v,
				Score:  z,
				Lower:  mean - threshold*sd,
				Upper:  mean + threshold*sd,
				Reason: fmt.Sprintf("Statistical outlier (Z-score=%.2f, threshold=%g)", z, threshold),
			})
		}
	}
	return out
}
