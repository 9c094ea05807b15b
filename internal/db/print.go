package db

import (
	"context"
	"database/sql"
	"time"
)

// GetOperatorRouteProgress returns the progress row for (shift, operator, route), or nil.
func (q *Queries) GetOperatorRouteProgress(ctx context.Context, shiftID, operatorID, routeNorm string) (*OperatorRouteProgress, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT shift_id, operator_id, route_norm, entered_at, cutoff_lote, last_printed_lote, last_printed_at
		FROM operator_route_progress
		WHERE shift_id = $1 AND operator_id = $2 AND route_norm = $3
	`, shiftID, operatorID, routeNorm)

	p := &OperatorRouteProgress{}
	err := row.Scan(&p.ShiftID, &p.OperatorID, &p.RouteNorm, &p.EnteredAt, &p.CutoffLote, &p.LastPrintedLote, &p.LastPrintedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// EnterOperatorRoute creates the progress row on first enter. Subsequent calls
// for the same (shift, operator, route) are no-ops (ON CONFLICT DO NOTHING) —
// the cutoff never advances by re-entering (§4.K).
func (q *Queries) EnterOperatorRoute(ctx context.Context, shiftID, operatorID, routeNorm string, enteredAt time.Time, cutoffLote sql.NullString) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO operator_route_progress (shift_id, operator_id, route_norm, entered_at, cutoff_lote)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shift_id, operator_id, route_norm) DO NOTHING
	`, shiftID, operatorID, routeNorm, enteredAt, cutoffLote)
	return err
}

// AdvanceOperatorLastPrinted advances last_printed_lote/at for (shift, operator, route).
func (q *Queries) AdvanceOperatorLastPrinted(ctx context.Context, shiftID, operatorID, routeNorm, loteID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE operator_route_progress
		SET last_printed_lote = $4, last_printed_at = $5
		WHERE shift_id = $1 AND operator_id = $2 AND route_norm = $3
	`, shiftID, operatorID, routeNorm, loteID, at)
	return err
}

// GetCollectorRouteProgress returns the progress row for (shift, route), or nil.
func (q *Queries) GetCollectorRouteProgress(ctx context.Context, shiftID, routeNorm string) (*CollectorRouteProgress, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT shift_id, route_norm, last_closed_lote, last_closed_at
		FROM collector_route_progress
		WHERE shift_id = $1 AND route_norm = $2
	`, shiftID, routeNorm)

	p := &CollectorRouteProgress{}
	err := row.Scan(&p.ShiftID, &p.RouteNorm, &p.LastClosedLote, &p.LastClosedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AdvanceCollectorLastClosed upserts last_closed_lote/at for (shift, route).
func (q *Queries) AdvanceCollectorLastClosed(ctx context.Context, shiftID, routeNorm, loteID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO collector_route_progress (shift_id, route_norm, last_closed_lote, last_closed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shift_id, route_norm) DO UPDATE SET last_closed_lote = EXCLUDED.last_closed_lote, last_closed_at = EXCLUDED.last_closed_at
	`, shiftID, routeNorm, loteID, at)
	return err
}

// InsertPrintJob creates a print job row.
func (q *Queries) InsertPrintJob(ctx context.Context, pj *PrintJob) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO print_jobs (id, shift_id, route_norm, actor_user, kind, status, pdf_ref, error_text, cutoff_lote, from_lote, to_lote)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, pj.ID, pj.ShiftID, pj.RouteNorm, pj.ActorUser, pj.Kind, pj.Status, pj.PDFRef, pj.ErrorText, pj.CutoffLote, pj.FromLote, pj.ToLote)
	return err
}

// InsertPrintJobItem links a line to a print job.
func (q *Queries) InsertPrintJobItem(ctx context.Context, printJobID, lineID string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO print_job_items (print_job_id, line_id) VALUES ($1, $2)
	`, printJobID, lineID)
	return err
}

// GetPrintJob fetches a print job by id.
func (q *Queries) GetPrintJob(ctx context.Context, id string) (*PrintJob, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, shift_id, route_norm, actor_user, kind, status, pdf_ref, error_text, cutoff_lote, from_lote, to_lote, created_at
		FROM print_jobs WHERE id = $1
	`, id)
	pj := &PrintJob{}
	err := row.Scan(&pj.ID, &pj.ShiftID, &pj.RouteNorm, &pj.ActorUser, &pj.Kind, &pj.Status, &pj.PDFRef, &pj.ErrorText,
		&pj.CutoffLote, &pj.FromLote, &pj.ToLote, &pj.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pj, nil
}
