package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellscope/domain/cycling"
	"cellscope/internal/errors"
	"cellscope/internal/outlier"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "WORKBOOK_FILE", "PORT", "OUTLIER_METHOD", "OUTLIER_THRESHOLD", "OUTLIER_BOUNDARY", "CE_KNEE_THRESHOLD", "ANALYSIS_WORKERS", "BOUNDS_FILE", "FORMATION_CYCLES_DEFAULT", "EFFICIENCY_TOLERANCE_PCT", "OUTLIER_HARD_BOUNDS", "OUTLIER_STATISTICAL", "ANALYSIS_CACHE_SIZE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Analysis.FormationCyclesDefault)
	assert.Equal(t, 1024, cfg.Analysis.CacheSize)
	assert.Equal(t, 0.95, cfg.Analysis.KneeThreshold)
	assert.Equal(t, outlier.MethodIQR, cfg.Outlier.Method)
	assert.Equal(t, 1.5, cfg.Outlier.Threshold)
	assert.Equal(t, outlier.BoundaryInclusive, cfg.Outlier.Boundary)
	assert.True(t, cfg.Outlier.HardBounds)
	assert.False(t, cfg.Outlier.Statistical)

	err = cfg.RequireDataSource()
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoad_ZScoreDefaultThreshold(t *testing.T) {
	t.Setenv("OUTLIER_METHOD", "zscore")
	t.Setenv("OUTLIER_THRESHOLD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Outlier.Threshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"CE_KNEE_THRESHOLD":   "1.5",
		"ANALYSIS_WORKERS":    "many",
		"ANALYSIS_CACHE_SIZE": "0",
		"OUTLIER_METHOD":      "dbscan",
		"OUTLIER_BOUNDARY":    "half-open",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestOutlierSettings_BoundsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bounds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bounds:\n  coulombic_efficiency: {min: 90, max: 100}\n"), 0o644))
	t.Setenv("BOUNDS_FILE", path)
	t.Setenv("OUTLIER_BOUNDARY", "exclusive")

	cfg, err := Load()
	require.NoError(t, err)
	s, err := cfg.OutlierSettings()
	require.NoError(t, err)
	assert.Equal(t, 90.0, s.Bounds[cycling.MetricCoulombicEfficiency].Min)
	assert.Equal(t, outlier.BoundaryExclusive, s.Boundary)

	cfg.Outlier.BoundsFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err = cfg.OutlierSettings()
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
