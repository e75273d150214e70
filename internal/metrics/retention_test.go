package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRetention_WindowReference(t *testing.T) {
	cycles := seq(12)
	caps := make([]float64, len(cycles))
	for i, c := range cycles {
		caps[i] = 110 - float64(c)
	}

	got := ComputeRetention(caps, cycles)
	require.NotNil(t, got)
	assert.Equal(t, 95.61, *got)
}

func TestComputeRetention_FirstPointFallback(t *testing.T) {
	caps := []float64{0, 109, 105, 98}

	got := ComputeRetention(caps, nil)
	require.NotNil(t, got)
	assert.Equal(t, 89.91, *got)
}

func TestComputeRetention_TooFewPoints(t *testing.T) {
	assert.Nil(t, ComputeRetention([]float64{100}, []int{1}))
	assert.Nil(t, ComputeRetention([]float64{100, -1, 0}, []int{1, 2, 3}))
}

func TestComputeFadeRate_Linear(t *testing.T) {
	cycles := seq(20)
	caps := make([]float64, len(cycles))
	for i, c := range cycles {
		caps[i] = 100 - 0.1*float64(c-1)
	}

	got := ComputeFadeRate(caps, cycles)
	require.NotNil(t, got)
	assert.InDelta(t, 10.0, *got, 1e-9)
}

func TestComputeFadeRate_Flat(t *testing.T) {
	cycles := seq(15)
	caps := make([]float64, len(cycles))
	for i := range caps {
		caps[i] = 150
	}

	got := ComputeFadeRate(caps, cycles)
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestComputeFadeRate_Insufficient(t *testing.T) {
	assert.Nil(t, ComputeFadeRate([]float64{100, 99, 98}, []int{1, 2, 3}))
	assert.Nil(t, ComputeFadeRate([]float64{100, 99}, nil))
}

func TestTable_Find(t *testing.T) {
	table := Table{
		"Cycle Number": {1, 2, 3},
		"CYCLE NUMBER": {7, 8, 9},
		"Q Dis (mA.h)": {109, 108, 107},
	}

	col, header, ok := table.Find([]string{"Q Dis (mA.h)"})
	require.True(t, ok)
	assert.Equal(t, "Q Dis (mA.h)", header)
	assert.Equal(t, []float64{109, 108, 107}, col)

	for i := 0; i < 20; i++ {
		_, header, ok = table.Find([]string{"cycle number"})
		require.True(t, ok)
		assert.Equal(t, "CYCLE NUMBER", header, "case-insensitive ties resolve in sorted header order")
	}

	_, header, ok = table.Find([]string{"Cycle Number"})
	require.True(t, ok)
	assert.Equal(t, "Cycle Number", header, "an exact header wins over a case-insensitive match")

	_, _, ok = table.Find([]string{"efficiency"})
	assert.False(t, ok)
}

func TestColumnMapping_Records(t *testing.T) {
	table := Table{
		"Qdis":       {1.0, 0.98, 0.97},
		"qchg":       {1.1, 1.0, 0.99},
		"Efficiency": {0.91, 0.98, 0.98},
	}

	records, err := DefaultColumnMapping().Records(table)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 1, records[0].CycleIndex)
	assert.Equal(t, 3, records[2].CycleIndex)
	assert.Equal(t, 1.1, records[0].ChargeCapacity)
	require.NotNil(t, records[1].Efficiency)
	assert.Equal(t, 0.98, *records[1].Efficiency)

	_, err = DefaultColumnMapping().Records(Table{"Cycle": {1}})
	assert.Error(t, err)
}
