package main

import (
	"context"

	"cellscope/adapters/excel"
	"cellscope/adapters/postgres"
	"cellscope/app"
	"cellscope/internal"
	"cellscope/internal/anomaly"
	"cellscope/internal/config"
	"cellscope/internal/errors"
	"cellscope/internal/outlier"
	"cellscope/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// runtime holds the wired adapters for one command invocation
type runtime struct {
	config  *config.Config
	db      *sqlx.DB
	cells   ports.ExperimentRepository
	cohorts ports.CohortLookup
	store   ports.AnalysisStore
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	internal.DefaultLogger.SetLevel(internal.ParseLogLevel(cfg.LogLevel))
	return cfg, nil
}

// openRuntime picks the repository: PostgreSQL when DATABASE_URL is set,
// otherwise the workbook. Only the database persists results.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDataSource(); err != nil {
		return nil, err
	}

	rt := &runtime{config: cfg}
	if cfg.Database.URL != "" {
		db, err := connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewCellRepository(db)
		rt.db = db
		rt.cells = repo
		rt.cohorts = repo
		rt.store = postgres.NewAnalysisRepository(db)
		return rt, nil
	}

	repo := excel.NewWorkbookRepository(excel.DefaultWorkbookConfig(cfg.Data.WorkbookFile))
	rt.cells = repo
	rt.cohorts = repo
	return rt, nil
}

func connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.DatabaseError("failed to ping database", err)
	}
	return db, nil
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
}

// service builds the analysis service, letting command flags override the
// configured outlier settings
func (rt *runtime) service(overrides func(*outlier.Settings)) (*app.AnalysisService, error) {
	svcConfig, err := serviceConfig(rt.config)
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		overrides(&svcConfig.Outliers)
	}
	return app.NewAnalysisService(rt.cells, rt.cohorts, rt.store, svcConfig), nil
}

func serviceConfig(cfg *config.Config) (app.ServiceConfig, error) {
	outliers, err := cfg.OutlierSettings()
	if err != nil {
		return app.ServiceConfig{}, err
	}
	engine := anomaly.DefaultSettings()
	engine.EfficiencyTolerancePct = cfg.Analysis.EfficiencyTolerancePct
	engine.CohortMethod = outliers.Method
	engine.CohortThreshold = outliers.Threshold

	return app.ServiceConfig{
		FormationCyclesDefault: cfg.Analysis.FormationCyclesDefault,
		KneeThreshold:          cfg.Analysis.KneeThreshold,
		Workers:                cfg.Analysis.Workers,
		CacheSize:              cfg.Analysis.CacheSize,
		Outliers:               outliers,
		Anomaly:                engine,
	}, nil
}
