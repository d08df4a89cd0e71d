package mpc

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
)

// ensureSchema creates the schedule_runs/schedule_entries tables if they do
// not already exist. Called at the start of every Run whose Driver has DB
// set; idempotent.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schedule_runs (
			run_id       TEXT PRIMARY KEY,
			model_type   TEXT NOT NULL,
			horizon_hours INTEGER NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_entries (
			run_id      TEXT NOT NULL REFERENCES schedule_runs(run_id),
			timestamp   TIMESTAMPTZ NOT NULL,
			action      TEXT NOT NULL,
			power_kw    DOUBLE PRECISION NOT NULL,
			market      TEXT NOT NULL,
			soc_after   DOUBLE PRECISION NOT NULL,
			solver_name TEXT NOT NULL,
			objective_value DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, timestamp)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to prepare mpc persistence schema: %w", err)
		}
	}
	return nil
}

// saveRun upserts the schedule_runs header row for runID.
func saveRun(ctx context.Context, db *sql.DB, runID string, req *api.OptimizationRequest) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO schedule_runs (run_id, model_type, horizon_hours)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET
			model_type = EXCLUDED.model_type,
			horizon_hours = EXCLUDED.horizon_hours
	`, runID, string(req.ModelType), req.HorizonHours)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule run %s: %w", runID, err)
	}
	return nil
}

// saveCommittedRows upserts one iteration's committed schedule rows inside
// a single transaction; re-running an iteration overwrites its rows.
func saveCommittedRows(ctx context.Context, db *sql.DB, runID, solverName string, objective float64, rows []api.ScheduleEntry) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedule_entries (
			run_id, timestamp, action, power_kw, market, soc_after, solver_name, objective_value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, timestamp) DO UPDATE SET
			action = EXCLUDED.action,
			power_kw = EXCLUDED.power_kw,
			market = EXCLUDED.market,
			soc_after = EXCLUDED.soc_after,
			solver_name = EXCLUDED.solver_name,
			objective_value = EXCLUDED.objective_value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, runID, row.Timestamp, row.Action, row.PowerKW, row.Market, row.SOCAfter, solverName, objective); err != nil {
			return fmt.Errorf("failed to insert schedule entry at %s: %w", row.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
