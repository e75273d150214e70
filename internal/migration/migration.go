package migration

import (
	"context"

	"cellscope/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	steps   []step
}

type step struct {
	name string
	sql  string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
		steps: []step{
			{"projects table", createProjects},
			{"experiments table", createExperiments},
			{"cells table", createCells},
			{"cycle_records table", createCycleRecords},
			{"cell_analyses table", createCellAnalyses},
			{"indexes", createIndexes},
		},
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL in execution order
func (r *MigrationRunner) Statements() []string {
	out := make([]string, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.sql
	}
	return out
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, s := range r.steps {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to create %s", s.name))
		}
	}
	return nil
}

const createProjects = `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		project_type TEXT NOT NULL DEFAULT 'Full Cell',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

const createExperiments = `
	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

const createCells = `
	CREATE TABLE IF NOT EXISTS cells (
		id TEXT PRIMARY KEY,
		experiment_id TEXT NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		loading DOUBLE PRECISION NOT NULL DEFAULT 0,
		active_material DOUBLE PRECISION NOT NULL DEFAULT 0,
		formation_cycles INTEGER,
		formulation JSONB,
		disc_mass_mg DOUBLE PRECISION,
		disc_diameter_mm DOUBLE PRECISION,
		pressed_thickness_um DOUBLE PRECISION,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

const createCycleRecords = `
	CREATE TABLE IF NOT EXISTS cycle_records (
		cell_id TEXT NOT NULL REFERENCES cells(id) ON DELETE CASCADE,
		cycle_index INTEGER NOT NULL,
		charge_capacity DOUBLE PRECISION,
		discharge_capacity DOUBLE PRECISION,
		efficiency DOUBLE PRECISION,
		charge_cutoff_v DOUBLE PRECISION,
		discharge_cutoff_v DOUBLE PRECISION,
		PRIMARY KEY (cell_id, cycle_index)
	)
`

const createCellAnalyses = `
	CREATE TABLE IF NOT EXISTS cell_analyses (
		run_id TEXT NOT NULL,
		cell_id TEXT NOT NULL REFERENCES cells(id) ON DELETE CASCADE,
		scope TEXT NOT NULL DEFAULT '',
		bundle JSONB NOT NULL,
		flags JSONB NOT NULL DEFAULT '[]',
		excluded BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (run_id, cell_id)
	)
`

const createIndexes = `
	CREATE INDEX IF NOT EXISTS idx_experiments_project ON experiments(project_id);
	CREATE INDEX IF NOT EXISTS idx_cells_experiment ON cells(experiment_id);
	CREATE INDEX IF NOT EXISTS idx_cell_analyses_cell_created ON cell_analyses(cell_id, created_at DESC)
`
