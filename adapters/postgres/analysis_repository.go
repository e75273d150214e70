package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"cellscope/domain/core"
	"cellscope/domain/flags"
	"cellscope/internal/errors"
	"cellscope/ports"

	"github.com/jmoiron/sqlx"
)

// AnalysisRepository implements AnalysisStore for PostgreSQL. Bundles and
// flags are stored as JSONB using their serialised field names; JSON is sent
// as text since lib/pq encodes []byte as bytea.
type AnalysisRepository struct {
	db *sqlx.DB
}

var _ ports.AnalysisStore = (*AnalysisRepository)(nil)

// NewAnalysisRepository creates a new PostgreSQL analysis repository
func NewAnalysisRepository(db *sqlx.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

type analysisRow struct {
	RunID     string    `db:"run_id"`
	CellID    string    `db:"cell_id"`
	Scope     string    `db:"scope"`
	Bundle    []byte    `db:"bundle"`
	Flags     []byte    `db:"flags"`
	Excluded  bool      `db:"excluded"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveAnalyses writes every record of a run in one transaction
func (r *AnalysisRepository) SaveAnalyses(ctx context.Context, records []ports.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		bundle, err := json.Marshal(rec.Bundle)
		if err != nil {
			return errors.Wrap(err, "failed to marshal bundle")
		}
		fs := rec.Flags
		if fs == nil {
			fs = []flags.Flag{}
		}
		flagsJSON, err := json.Marshal(fs)
		if err != nil {
			return errors.Wrap(err, "failed to marshal flags")
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cell_analyses (run_id, cell_id, scope, bundle, flags, excluded, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.RunID, rec.CellID, rec.Scope, string(bundle), string(flagsJSON), rec.Excluded, createdAt); err != nil {
			return errors.DatabaseError("failed to save analysis", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit analyses", err)
	}
	return nil
}

// LatestAnalysis returns the most recent stored analysis of a cell
func (r *AnalysisRepository) LatestAnalysis(ctx context.Context, cellID core.CellID) (*ports.AnalysisRecord, error) {
	var row analysisRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, cell_id, scope, bundle, flags, excluded, created_at
		FROM cell_analyses
		WHERE cell_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, cellID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("analysis", cellID.String())
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load analysis", err)
	}
	return row.record()
}

func (row analysisRow) record() (*ports.AnalysisRecord, error) {
	rec := &ports.AnalysisRecord{
		RunID:     core.RunID(row.RunID),
		CellID:    core.CellID(row.CellID),
		Scope:     row.Scope,
		Excluded:  row.Excluded,
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal(row.Bundle, &rec.Bundle); err != nil {
		return nil, errors.Wrap(err, "failed to decode bundle")
	}
	if len(row.Flags) > 0 {
		if err := json.Unmarshal(row.Flags, &rec.Flags); err != nil {
			return nil, errors.Wrap(err, "failed to decode flags")
		}
	}
	return rec, nil
}
