package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateShift inserts a new shift in CREATED state.
func (q *Queries) CreateShift(ctx context.Context, id string, date time.Time, slot string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO shifts (id, date, slot, state)
		VALUES ($1, $2, $3, 'CREATED')
	`, id, date, slot)
	return err
}

// ActivateShift transitions a shift CREATED -> ACTIVE. The partial unique index
// shifts_one_active backstops the at-most-one-active invariant at the DB level;
// callers must still have checked GetActiveShift first to return a typed error.
func (q *Queries) ActivateShift(ctx context.Context, id string, startedAt, scheduledEndAt time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE shifts
		SET state = 'ACTIVE', started_at = $2, scheduled_end_at = $3
		WHERE id = $1 AND state = 'CREATED'
	`, id, startedAt, scheduledEndAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("shift %s not in CREATED state", id)
	}
	return nil
}

// CloseShift transitions a shift ACTIVE -> CLOSED.
func (q *Queries) CloseShift(ctx context.Context, id string, endedAt time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE shifts SET state = 'CLOSED', ended_at = $2
		WHERE id = $1 AND state = 'ACTIVE'
	`, id, endedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("shift %s not active", id)
	}
	return nil
}

func scanShift(row *sql.Row) (*Shift, error) {
	s := &Shift{}
	err := row.Scan(&s.ID, &s.Date, &s.Slot, &s.State, &s.StartedAt, &s.ScheduledEndAt, &s.EndedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

const shiftColumns = `id, date, slot, state, started_at, scheduled_end_at, ended_at, created_at`

// GetActiveShift returns the currently ACTIVE shift, or nil if none. Every
// subsystem that needs "the active shift" re-queries this rather than caching
// it, to avoid TOCTOU races with open/close (§9 design notes).
func (q *Queries) GetActiveShift(ctx context.Context) (*Shift, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE state = 'ACTIVE' LIMIT 1`)
	return scanShift(row)
}

// GetShift fetches a shift by id.
func (q *Queries) GetShift(ctx context.Context, id string) (*Shift, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	return scanShift(row)
}

// GetShiftByDateSlot fetches a shift by its unique (date, slot) pair.
func (q *Queries) GetShiftByDateSlot(ctx context.Context, date time.Time, slot string) (*Shift, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE date = $1 AND slot = $2`, date, slot)
	return scanShift(row)
}

// GetMostRecentClosedShift returns the most recently closed shift, or nil if none.
func (q *Queries) GetMostRecentClosedShift(ctx context.Context) (*Shift, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE state = 'CLOSED'
		ORDER BY ended_at DESC NULLS LAST
		LIMIT 1
	`)
	return scanShift(row)
}

// GetShiftsPastScheduledEnd returns ACTIVE shifts whose scheduled_end_at has elapsed.
func (q *Queries) GetShiftsPastScheduledEnd(ctx context.Context, now time.Time) ([]Shift, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE state = 'ACTIVE' AND scheduled_end_at IS NOT NULL AND scheduled_end_at <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shift
	for rows.Next() {
		var s Shift
		if err := rows.Scan(&s.ID, &s.Date, &s.Slot, &s.State, &s.StartedAt, &s.ScheduledEndAt, &s.EndedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetOperatorQualification upserts whether an operator is enabled for a
// functional code within a shift.
func (q *Queries) SetOperatorQualification(ctx context.Context, shiftID, operatorID string, functionalCode int, enabled bool) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO operator_qualifications (shift_id, operator_id, functional_code, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shift_id, operator_id, functional_code) DO UPDATE SET enabled = EXCLUDED.enabled
	`, shiftID, operatorID, functionalCode, enabled)
	return err
}

// GetPool returns operator ids enabled for a functional code within a shift,
// ordered by operator id ascending (§4.F step 2).
func (q *Queries) GetPool(ctx context.Context, shiftID string, functionalCode int) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT operator_id FROM operator_qualifications
		WHERE shift_id = $1 AND functional_code = $2 AND enabled = TRUE
		ORDER BY operator_id ASC
	`, shiftID, functionalCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// SetRouteCollector records who collects a route on a shift.
func (q *Queries) SetRouteCollector(ctx context.Context, shiftID, routeNorm, collectorUser string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO route_collectors (shift_id, route_norm, collector_user)
		VALUES ($1, $2, $3)
		ON CONFLICT (shift_id, route_norm) DO UPDATE SET collector_user = EXCLUDED.collector_user
	`, shiftID, routeNorm, collectorUser)
	return err
}
