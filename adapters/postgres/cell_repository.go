package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"math"

	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal/errors"
	"cellscope/ports"

	"github.com/jmoiron/sqlx"
)

// CellRepository implements ExperimentRepository and CohortLookup for PostgreSQL
type CellRepository struct {
	db *sqlx.DB
}

var (
	_ ports.ExperimentRepository = (*CellRepository)(nil)
	_ ports.CohortLookup         = (*CellRepository)(nil)
)

// NewCellRepository creates a new PostgreSQL cell repository
func NewCellRepository(db *sqlx.DB) *CellRepository {
	return &CellRepository{db: db}
}

type cellRow struct {
	ID                 string          `db:"id"`
	Name               string          `db:"name"`
	ExperimentID       string          `db:"experiment_id"`
	ExperimentName     string          `db:"experiment_name"`
	ProjectID          string          `db:"project_id"`
	ProjectType        string          `db:"project_type"`
	Loading            float64         `db:"loading"`
	ActiveMaterial     float64         `db:"active_material"`
	FormationCycles    sql.NullInt64   `db:"formation_cycles"`
	Formulation        []byte          `db:"formulation"`
	DiscMassMg         sql.NullFloat64 `db:"disc_mass_mg"`
	DiscDiameterMm     sql.NullFloat64 `db:"disc_diameter_mm"`
	PressedThicknessUm sql.NullFloat64 `db:"pressed_thickness_um"`
}

type cycleRow struct {
	CycleIndex        int             `db:"cycle_index"`
	ChargeCapacity    sql.NullFloat64 `db:"charge_capacity"`
	DischargeCapacity sql.NullFloat64 `db:"discharge_capacity"`
	Efficiency        sql.NullFloat64 `db:"efficiency"`
	ChargeCutoffV     sql.NullFloat64 `db:"charge_cutoff_v"`
	DischargeCutoffV  sql.NullFloat64 `db:"discharge_cutoff_v"`
}

// LoadCell retrieves a cell's metadata and cycle series
func (r *CellRepository) LoadCell(ctx context.Context, id core.CellID) (cycling.CellData, error) {
	var row cellRow
	err := r.db.GetContext(ctx, &row, `
		SELECT c.id, c.name, c.experiment_id, e.name AS experiment_name, e.project_id,
			p.project_type, c.loading, c.active_material, c.formation_cycles, c.formulation,
			c.disc_mass_mg, c.disc_diameter_mm, c.pressed_thickness_um
		FROM cells c
		JOIN experiments e ON e.id = c.experiment_id
		JOIN projects p ON p.id = e.project_id
		WHERE c.id = $1
	`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return cycling.CellData{}, core.NewNotFoundError("cell", id.String())
	}
	if err != nil {
		return cycling.CellData{}, errors.DatabaseError("failed to load cell", err)
	}

	meta, err := row.metadata()
	if err != nil {
		return cycling.CellData{}, errors.Wrapf(err, "cell %s", id)
	}

	var rows []cycleRow
	err = r.db.SelectContext(ctx, &rows, `
		SELECT cycle_index, charge_capacity, discharge_capacity, efficiency, charge_cutoff_v, discharge_cutoff_v
		FROM cycle_records
		WHERE cell_id = $1
		ORDER BY cycle_index
	`, id)
	if err != nil {
		return cycling.CellData{}, errors.DatabaseError("failed to load cycle records", err)
	}

	records := make([]cycling.CycleRecord, len(rows))
	for i, cr := range rows {
		records[i] = cycling.CycleRecord{
			CycleIndex:        cr.CycleIndex,
			ChargeCapacity:    nullToNaN(cr.ChargeCapacity),
			DischargeCapacity: nullToNaN(cr.DischargeCapacity),
			Efficiency:        nullToPtr(cr.Efficiency),
			ChargeCutoffV:     nullToPtr(cr.ChargeCutoffV),
			DischargeCutoffV:  nullToPtr(cr.DischargeCutoffV),
		}
	}
	return cycling.CellData{Metadata: meta, Cycles: records}, nil
}

func (row cellRow) metadata() (cycling.CellMetadata, error) {
	formulation, err := cycling.ParseFormulationJSON(row.Formulation)
	if err != nil {
		return cycling.CellMetadata{}, errors.ValidationError(err.Error())
	}
	meta := cycling.CellMetadata{
		CellID:             core.CellID(row.ID),
		CellName:           row.Name,
		ExperimentID:       core.ExperimentID(row.ExperimentID),
		ExperimentName:     row.ExperimentName,
		ProjectID:          core.ProjectID(row.ProjectID),
		ProjectType:        cycling.ProjectType(row.ProjectType),
		LoadingMg:          row.Loading,
		ActiveMaterialPct:  row.ActiveMaterial,
		Formulation:        formulation,
		DiscMassMg:         nullToPtr(row.DiscMassMg),
		DiscDiameterMm:     nullToPtr(row.DiscDiameterMm),
		PressedThicknessUm: nullToPtr(row.PressedThicknessUm),
	}
	if row.FormationCycles.Valid {
		meta.FormationCycles = cycling.Int(int(row.FormationCycles.Int64))
	}
	return meta, nil
}

// CohortCells lists cell IDs in the scope ordered by name then ID
func (r *CellRepository) CohortCells(ctx context.Context, scope ports.CohortScope) ([]core.CellID, error) {
	query := `
		SELECT c.id
		FROM cells c
		JOIN experiments e ON e.id = c.experiment_id
	`
	var args []interface{}
	switch {
	case scope.ExperimentID != "":
		query += " WHERE c.experiment_id = $1"
		args = append(args, scope.ExperimentID)
	case scope.ProjectID != "":
		query += " WHERE e.project_id = $1"
		args = append(args, scope.ProjectID)
	}
	query += " ORDER BY c.name, c.id"

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, errors.DatabaseError("failed to list cohort cells", err)
	}
	out := make([]core.CellID, len(ids))
	for i, id := range ids {
		out[i] = core.CellID(id)
	}
	return out, nil
}

// SaveCell upserts a cell with its project, experiment and cycle series
func (r *CellRepository) SaveCell(ctx context.Context, data cycling.CellData) error {
	m := data.Metadata
	formulation, err := json.Marshal(m.Formulation)
	if err != nil {
		return errors.Wrap(err, "failed to marshal formulation")
	}
	projectType := m.ProjectType
	if projectType == "" {
		projectType = cycling.ProjectFullCell
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, project_type) VALUES ($1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET project_type = EXCLUDED.project_type
	`, m.ProjectID, projectType); err != nil {
		return errors.DatabaseError("failed to upsert project", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO experiments (id, project_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, m.ExperimentID, m.ProjectID, m.ExperimentName); err != nil {
		return errors.DatabaseError("failed to upsert experiment", err)
	}

	var fc interface{}
	if m.FormationCycles != nil {
		fc = *m.FormationCycles
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cells (id, experiment_id, name, loading, active_material, formation_cycles,
			formulation, disc_mass_mg, disc_diameter_mm, pressed_thickness_um)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			experiment_id = EXCLUDED.experiment_id, name = EXCLUDED.name,
			loading = EXCLUDED.loading, active_material = EXCLUDED.active_material,
			formation_cycles = EXCLUDED.formation_cycles, formulation = EXCLUDED.formulation,
			disc_mass_mg = EXCLUDED.disc_mass_mg, disc_diameter_mm = EXCLUDED.disc_diameter_mm,
			pressed_thickness_um = EXCLUDED.pressed_thickness_um
	`, m.CellID, m.ExperimentID, m.CellName, m.LoadingMg, m.ActiveMaterialPct, fc,
		string(formulation), ptrToNull(m.DiscMassMg), ptrToNull(m.DiscDiameterMm), ptrToNull(m.PressedThicknessUm)); err != nil {
		return errors.DatabaseError("failed to upsert cell", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cycle_records WHERE cell_id = $1`, m.CellID); err != nil {
		return errors.DatabaseError("failed to clear cycle records", err)
	}
	for _, rec := range data.Cycles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cycle_records (cell_id, cycle_index, charge_capacity, discharge_capacity,
				efficiency, charge_cutoff_v, discharge_cutoff_v)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (cell_id, cycle_index) DO NOTHING
		`, m.CellID, rec.CycleIndex, nanToNull(rec.ChargeCapacity), nanToNull(rec.DischargeCapacity),
			ptrToNull(rec.Efficiency), ptrToNull(rec.ChargeCutoffV), ptrToNull(rec.DischargeCutoffV)); err != nil {
			return errors.DatabaseError("failed to insert cycle record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit cell", err)
	}
	return nil
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nanToNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func ptrToNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return nanToNull(*v)
}
