package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"
)

// InsertEvent appends one row to the durable event log. This is the
// persistence half of §4.B's "persistence happens first" ordering — callers
// publish to the live bus only after this succeeds (and, inside a batch
// transaction, only after commit).
func (q *Queries) InsertEvent(ctx context.Context, id string, ts time.Time, actor sql.NullString, eventType, entityType, entityID string, payload json.RawMessage) error {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO events (id, ts, actor, type, entity_type, entity_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, ts, actor, eventType, entityType, entityID, payload)
	return err
}

// ListEventsAfter returns events strictly later than the given reference
// timestamp, ascending, capped at limit — used for SSE replay (§4.N).
func (q *Queries) ListEventsAfter(ctx context.Context, after time.Time, limit int) ([]Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, ts, actor, type, entity_type, entity_id, payload
		FROM events
		WHERE ts > $1
		ORDER BY ts ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Actor, &e.Type, &e.EntityType, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEventsPage returns a filtered, paginated page of events for GET /api/events.
func (q *Queries) ListEventsPage(ctx context.Context, entityType, eventType string, limit, offset int) ([]Event, int, error) {
	where := "WHERE 1=1"
	var args []interface{}
	n := 1
	if entityType != "" {
		where += " AND entity_type = $" + strconv.Itoa(n)
		args = append(args, entityType)
		n++
	}
	if eventType != "" {
		where += " AND type = $" + strconv.Itoa(n)
		args = append(args, eventType)
		n++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM events " + where
	if err := q.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT id, ts, actor, type, entity_type, entity_id, payload FROM events " + where +
		" ORDER BY ts DESC LIMIT $" + strconv.Itoa(n) + " OFFSET $" + strconv.Itoa(n+1)
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Actor, &e.Type, &e.EntityType, &e.EntityID, &e.Payload); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
