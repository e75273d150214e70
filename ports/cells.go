package ports

import (
	"context"
	"fmt"
	"time"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/domain/flags"
)

// ExperimentRepository loads a cell's raw cycle series and metadata
type ExperimentRepository interface {
	LoadCell(ctx context.Context, id core.CellID) (cycling.CellData, error)
}

// CohortScope names a set of comparable cells. An experiment scope wins over
// a project scope when both are set.
type CohortScope struct {
	ProjectID    core.ProjectID    `json:"project_id,omitempty"`
	ExperimentID core.ExperimentID `json:"experiment_id,omitempty"`
}

// String renders the scope for logs and reports
func (s CohortScope) String() string {
	switch {
	case s.ExperimentID != "":
		return fmt.Sprintf("experiment:%s", s.ExperimentID)
	case s.ProjectID != "":
		return fmt.Sprintf("project:%s", s.ProjectID)
	}
	return "all"
}

// CohortLookup resolves a scope to its sibling cells, in a stable order
type CohortLookup interface {
	CohortCells(ctx context.Context, scope CohortScope) ([]core.CellID, error)
}

// AnalysisRecord is one persisted per-cell result of an analysis run
type AnalysisRecord struct {
	RunID     core.RunID               `json:"run_id"`
	CellID    core.CellID              `json:"cell_id"`
	Scope     string                   `json:"scope"`
	Bundle    cycling.CellMetricBundle `json:"bundle"`
	Flags     []flags.Flag             `json:"flags"`
	Excluded  bool                     `json:"excluded"`
	CreatedAt time.Time                `json:"created_at"`
}

// AnalysisStore persists analysis results
type AnalysisStore interface {
	SaveAnalyses(ctx context.Context, records []AnalysisRecord) error
	LatestAnalysis(ctx context.Context, cellID core.CellID) (*AnalysisRecord, error)
}
