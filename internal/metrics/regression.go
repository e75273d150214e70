package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// LinearSlope returns the least-squares slope of y against x. It reports false
// when the fit is undefined, e.g. fewer than two points or constant x.
func LinearSlope(x, y []float64) (float64, bool) {
	if len(x) < 2 || len(x) != len(y) {
		return 0, false
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, false
	}
	return beta, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}
