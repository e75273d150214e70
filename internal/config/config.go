package config

import (
	"fmt"
	"os"
	"strconv"

	"cellscope/internal/errors"
	"cellscope/internal/outlier"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Data     DataConfig
	Server   ServerConfig
	Analysis AnalysisConfig
	Outlier  OutlierConfig
	LogLevel string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// DataConfig selects the experiment repository
type DataConfig struct {
	WorkbookFile string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// AnalysisConfig tunes the metric calculator and anomaly engine
type AnalysisConfig struct {
	FormationCyclesDefault int
	KneeThreshold          float64
	EfficiencyTolerancePct float64
	Workers                int
	CacheSize              int
}

// OutlierConfig mirrors outlier.Settings in environment form
type OutlierConfig struct {
	HardBounds  bool
	Statistical bool
	Method      outlier.Method
	Threshold   float64
	Boundary    outlier.BoundaryMode
	BoundsFile  string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Data: DataConfig{
			WorkbookFile: os.Getenv("WORKBOOK_FILE"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	analysis, err := loadAnalysisConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load analysis configuration")
	}
	config.Analysis = *analysis

	outlierConfig, err := loadOutlierConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load outlier configuration")
	}
	config.Outlier = *outlierConfig

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadAnalysisConfig() (*AnalysisConfig, error) {
	fc, err := getEnvInt("FORMATION_CYCLES_DEFAULT", 4)
	if err != nil {
		return nil, err
	}
	knee, err := getEnvFloat("CE_KNEE_THRESHOLD", 0.95)
	if err != nil {
		return nil, err
	}
	tol, err := getEnvFloat("EFFICIENCY_TOLERANCE_PCT", 0)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("ANALYSIS_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := getEnvInt("ANALYSIS_CACHE_SIZE", 1024)
	if err != nil {
		return nil, err
	}
	return &AnalysisConfig{
		FormationCyclesDefault: fc,
		KneeThreshold:          knee,
		EfficiencyTolerancePct: tol,
		Workers:                workers,
		CacheSize:              cacheSize,
	}, nil
}

func loadOutlierConfig() (*OutlierConfig, error) {
	method, err := outlier.ParseMethod(os.Getenv("OUTLIER_METHOD"))
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	boundary, err := outlier.ParseBoundaryMode(os.Getenv("OUTLIER_BOUNDARY"))
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	threshold, err := getEnvFloat("OUTLIER_THRESHOLD", method.DefaultThreshold())
	if err != nil {
		return nil, err
	}
	hard, err := getEnvBool("OUTLIER_HARD_BOUNDS", true)
	if err != nil {
		return nil, err
	}
	statistical, err := getEnvBool("OUTLIER_STATISTICAL", false)
	if err != nil {
		return nil, err
	}
	return &OutlierConfig{
		HardBounds:  hard,
		Statistical: statistical,
		Method:      method,
		Threshold:   threshold,
		Boundary:    boundary,
		BoundsFile:  os.Getenv("BOUNDS_FILE"),
	}, nil
}

func validateConfig(config *Config) error {
	a := config.Analysis
	if a.FormationCyclesDefault < 0 {
		return errors.ConfigInvalid("FORMATION_CYCLES_DEFAULT must not be negative")
	}
	if a.KneeThreshold <= 0 || a.KneeThreshold > 1 {
		return errors.ConfigInvalid("CE_KNEE_THRESHOLD must be in (0, 1]")
	}
	if a.EfficiencyTolerancePct < 0 {
		return errors.ConfigInvalid("EFFICIENCY_TOLERANCE_PCT must not be negative")
	}
	if a.Workers < 1 {
		return errors.ConfigInvalid("ANALYSIS_WORKERS must be at least 1")
	}
	if a.CacheSize < 1 {
		return errors.ConfigInvalid("ANALYSIS_CACHE_SIZE must be at least 1")
	}
	if config.Outlier.Threshold <= 0 {
		return errors.ConfigInvalid("OUTLIER_THRESHOLD must be positive")
	}
	return nil
}

// RequireDataSource checks that a repository is configured
func (c *Config) RequireDataSource() error {
	if c.Database.URL == "" && c.Data.WorkbookFile == "" {
		return errors.ConfigInvalid("one of DATABASE_URL or WORKBOOK_FILE is required")
	}
	return nil
}

// OutlierSettings builds filter settings, reading BOUNDS_FILE when set
func (c *Config) OutlierSettings() (outlier.Settings, error) {
	s := outlier.DefaultSettings()
	s.HardBounds = c.Outlier.HardBounds
	s.Statistical = c.Outlier.Statistical
	s.Method = c.Outlier.Method
	s.Threshold = c.Outlier.Threshold
	s.Boundary = c.Outlier.Boundary

	if c.Outlier.BoundsFile != "" {
		bounds, err := outlier.LoadBounds(c.Outlier.BoundsFile)
		if err != nil {
			return s, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		s.Bounds = bounds
	}
	return s, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s must be an integer, got %q", key, value))
	}
	return intValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s must be a number, got %q", key, value))
	}
	return floatValue, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.ConfigInvalid(fmt.Sprintf("%s must be a boolean, got %q", key, value))
	}
	return boolValue, nil
}
