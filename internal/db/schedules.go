package db

import (
	"context"
	"database/sql"
	"time"
)

// GetActiveScheduleEndSeconds returns the active schedule's end-of-day offset
// (seconds since midnight) for a slot, owned by an external collaborator
// (§1 Non-goals: role-gated CRUD of schedules) and read-only here.
func (q *Queries) GetActiveScheduleEndSeconds(ctx context.Context, slot string) (int, bool, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT end_of_day_seconds FROM shift_schedules WHERE slot = $1 AND active = TRUE
	`, slot)
	var seconds int
	if err := row.Scan(&seconds); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seconds, true, nil
}

// ScheduledEndAt computes date + end-of-day offset in UTC, per §4.I's
// "scheduled_end_at := date + end_of_schedule".
func ScheduledEndAt(date time.Time, endOfDaySeconds int) time.Time {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(endOfDaySeconds) * time.Second)
}
