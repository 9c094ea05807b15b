package db

import (
	"context"
	"database/sql"
	"time"
)

const routeDayColumns = `shift_id, route_norm, visual_state, logical_state, reactivations_count, last_event_at`

func scanRouteDay(row *sql.Row) (*RouteDay, error) {
	rd := &RouteDay{}
	err := row.Scan(&rd.ShiftID, &rd.RouteNorm, &rd.VisualState, &rd.LogicalState, &rd.ReactivationsCount, &rd.LastEventAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// FindOrCreateRouteDay returns the RouteDay for (shift, route), creating it
// with {BLUE, ACTIVE, 0} if it doesn't exist yet.
func (q *Queries) FindOrCreateRouteDay(ctx context.Context, shiftID, routeNorm string) (*RouteDay, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO route_days (shift_id, route_norm, visual_state, logical_state, reactivations_count, last_event_at)
		VALUES ($1, $2, 'BLUE', 'ACTIVE', 0, NOW())
		ON CONFLICT (shift_id, route_norm) DO NOTHING
	`, shiftID, routeNorm)
	if err != nil {
		return nil, err
	}
	row := q.db.QueryRowContext(ctx, `SELECT `+routeDayColumns+` FROM route_days WHERE shift_id = $1 AND route_norm = $2`, shiftID, routeNorm)
	return scanRouteDay(row)
}

// GetRouteDayForUpdate fetches a RouteDay row-locked FOR UPDATE, serializing
// concurrent transitions on the same route per §5's ordering guarantees. Must
// be called with a tx-bound Queries.
func (q *Queries) GetRouteDayForUpdate(ctx context.Context, shiftID, routeNorm string) (*RouteDay, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+routeDayColumns+` FROM route_days WHERE shift_id = $1 AND route_norm = $2 FOR UPDATE`, shiftID, routeNorm)
	return scanRouteDay(row)
}

// UpdateRouteDayVisual updates visual_state and last_event_at.
func (q *Queries) UpdateRouteDayVisual(ctx context.Context, shiftID, routeNorm, visual string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE route_days SET visual_state = $3, last_event_at = $4 WHERE shift_id = $1 AND route_norm = $2
	`, shiftID, routeNorm, visual, at)
	return err
}

// MarkCollected flips logical_state to COLLECTED.
func (q *Queries) MarkCollected(ctx context.Context, shiftID, routeNorm string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE route_days SET logical_state = 'COLLECTED', last_event_at = $3 WHERE shift_id = $1 AND route_norm = $2
	`, shiftID, routeNorm, at)
	return err
}

// IncrementReactivations bumps reactivations_count by one.
func (q *Queries) IncrementReactivations(ctx context.Context, shiftID, routeNorm string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE route_days SET reactivations_count = reactivations_count + 1 WHERE shift_id = $1 AND route_norm = $2
	`, shiftID, routeNorm)
	return err
}

// RouteDaySummary is the aggregate view backing GET /api/routes.
type RouteDaySummary struct {
	RouteDay
	Unprinted    int
	TotalLines   int
	TotalClients int
	LotesCount   int
}

// ListRouteDaySummaries returns one summary row per RouteDay in a shift.
func (q *Queries) ListRouteDaySummaries(ctx context.Context, shiftID string) ([]RouteDaySummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT rd.shift_id, rd.route_norm, rd.visual_state, rd.logical_state, rd.reactivations_count, rd.last_event_at,
			COALESCE(SUM(CASE WHEN li.printed_at IS NULL THEN 1 ELSE 0 END), 0) AS unprinted,
			COALESCE(COUNT(li.id), 0) AS total_lines,
			COALESCE(COUNT(DISTINCT co.id), 0) AS total_clients,
			COALESCE(COUNT(DISTINCT lo.id), 0) AS lotes_count
		FROM route_days rd
		LEFT JOIN lotes lo ON lo.original_shift = rd.shift_id AND lo.route_norm = rd.route_norm AND lo.parse_status = 'OK'
		LEFT JOIN client_orders co ON co.lote_id = lo.id
		LEFT JOIN lines li ON li.client_order_id = co.id
		WHERE rd.shift_id = $1
		GROUP BY rd.shift_id, rd.route_norm, rd.visual_state, rd.logical_state, rd.reactivations_count, rd.last_event_at
		ORDER BY rd.route_norm ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteDaySummary
	for rows.Next() {
		var s RouteDaySummary
		if err := rows.Scan(&s.ShiftID, &s.RouteNorm, &s.VisualState, &s.LogicalState, &s.ReactivationsCount, &s.LastEventAt,
			&s.Unprinted, &s.TotalLines, &s.TotalClients, &s.LotesCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
