package db

import (
	"context"
	"database/sql"
	"time"
)

const loteColumns = `id, imap_uidvalidity, imap_uid, received_at, subject_raw, body_raw,
	parse_status, parse_error, route_norm, products_catalog_version, routes_catalog_version,
	original_shift, carried_over, created_at`

func scanLote(row *sql.Row) (*Lote, error) {
	l := &Lote{}
	err := row.Scan(&l.ID, &l.ImapUIDValidity, &l.ImapUID, &l.ReceivedAt, &l.SubjectRaw, &l.BodyRaw,
		&l.ParseStatus, &l.ParseError, &l.RouteNorm, &l.ProductsCatalogVersion, &l.RoutesCatalogVersion,
		&l.OriginalShift, &l.CarriedOver, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// InsertLoteIfNew attempts to create a new lote keyed by (uidvalidity, uid).
// It returns (id, true, nil) if a new row was inserted, or ("", false, nil) if
// a row with that key already existed — the idempotency anchor for ingest.
func (q *Queries) InsertLoteIfNew(ctx context.Context, id string, uidvalidity, uid int64, receivedAt time.Time,
	subjectRaw, bodyRaw, parseStatus string, parseError sql.NullString, originalShift string) (string, bool, error) {

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO lotes (id, imap_uidvalidity, imap_uid, received_at, subject_raw, body_raw, parse_status, parse_error, original_shift)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (imap_uidvalidity, imap_uid) DO NOTHING
	`, id, uidvalidity, uid, receivedAt, subjectRaw, bodyRaw, parseStatus, parseError, originalShift)
	if err != nil {
		return "", false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}
	return id, true, nil
}

// InsertCarriedOverLote creates a carryover lote with no IMAP identity.
func (q *Queries) InsertCarriedOverLote(ctx context.Context, id string, subjectRaw, bodyRaw, routeNorm string,
	productsVersion, routesVersion sql.NullInt64, originalShift string) error {

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO lotes (id, subject_raw, body_raw, parse_status, route_norm, products_catalog_version, routes_catalog_version, original_shift, carried_over)
		VALUES ($1, $2, $3, 'OK', $4, $5, $6, $7, TRUE)
	`, id, subjectRaw, bodyRaw, routeNorm, productsVersion, routesVersion, originalShift)
	return err
}

// GetLote fetches a lote by id.
func (q *Queries) GetLote(ctx context.Context, id string) (*Lote, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+loteColumns+` FROM lotes WHERE id = $1`, id)
	return scanLote(row)
}

// BindCatalogVersions snapshots the catalog versions active at parse time onto the lote.
func (q *Queries) BindCatalogVersions(ctx context.Context, loteID string, productsVersion, routesVersion int) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE lotes SET products_catalog_version = $2, routes_catalog_version = $3 WHERE id = $1
	`, loteID, productsVersion, routesVersion)
	return err
}

// SetLoteRouteError marks a lote as ERROR_ROUTE with the resolved (failing) route_norm.
func (q *Queries) SetLoteRouteError(ctx context.Context, loteID, routeNorm, parseError string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE lotes SET parse_status = 'ERROR_ROUTE', route_norm = $2, parse_error = $3 WHERE id = $1
	`, loteID, routeNorm, parseError)
	return err
}

// SetLoteParseError marks a lote as ERROR_PARSE.
func (q *Queries) SetLoteParseError(ctx context.Context, loteID, parseError string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE lotes SET parse_status = 'ERROR_PARSE', parse_error = $2 WHERE id = $1
	`, loteID, parseError)
	return err
}

// SetLoteOK marks a lote OK with its resolved route.
func (q *Queries) SetLoteOK(ctx context.Context, loteID, routeNorm string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE lotes SET parse_status = 'OK', route_norm = $2 WHERE id = $1
	`, loteID, routeNorm)
	return err
}

// InsertClientOrder creates a ClientOrder row belonging to a lote.
func (q *Queries) InsertClientOrder(ctx context.Context, id, loteID, nameRaw, affinityKey string, observations sql.NullString) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO client_orders (id, lote_id, name_raw, affinity_key, observations)
		VALUES ($1, $2, $3, $4, $5)
	`, id, loteID, nameRaw, affinityKey, observations)
	return err
}

// InsertLine creates a Line row belonging to a client order.
func (q *Queries) InsertLine(ctx context.Context, l *Line) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO lines (
			id, client_order_id, seq_in_client, quantity, unit_raw, product_raw, product_norm,
			price, currency, match_method, match_score, family, functional_code, operator_id, assigned_at,
			printed_at, print_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, l.ID, l.ClientOrderID, l.SeqInClient, l.Quantity, l.UnitRaw, l.ProductRaw, l.ProductNorm,
		l.Price, l.Currency, l.MatchMethod, l.MatchScore, l.Family, l.FunctionalCode, l.OperatorID, l.AssignedAt,
		l.PrintedAt, l.PrintCount)
	return err
}

// CountUnprinted returns the number of not-yet-printed lines for a (shift, route)
// restricted to lotes with parse_status = OK — the derived metric driving §4.G.
func (q *Queries) CountUnprinted(ctx context.Context, shiftID, routeNorm string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM lines li
		JOIN client_orders co ON co.id = li.client_order_id
		JOIN lotes lo ON lo.id = co.lote_id
		WHERE lo.original_shift = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK' AND li.printed_at IS NULL
	`, shiftID, routeNorm).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LoteLineRow is one line plus the ordering keys needed by §4.L's selector.
type LoteLineRow struct {
	Line
	LoteID        string
	LoteCreatedAt time.Time
}

const lineSelectColumns = `
	li.id, li.client_order_id, li.seq_in_client, li.quantity, li.unit_raw, li.product_raw, li.product_norm,
	li.price, li.currency, li.match_method, li.match_score, li.family, li.functional_code, li.operator_id,
	li.assigned_at, li.printed_at, li.print_count, li.created_at, lo.id, lo.created_at`

func scanLoteLineRows(rows *sql.Rows) ([]LoteLineRow, error) {
	var out []LoteLineRow
	for rows.Next() {
		var r LoteLineRow
		if err := rows.Scan(
			&r.ID, &r.ClientOrderID, &r.SeqInClient, &r.Quantity, &r.UnitRaw, &r.ProductRaw, &r.ProductNorm,
			&r.Price, &r.Currency, &r.MatchMethod, &r.MatchScore, &r.Family, &r.FunctionalCode, &r.OperatorID,
			&r.AssignedAt, &r.PrintedAt, &r.PrintCount, &r.CreatedAt, &r.LoteID, &r.LoteCreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListOperatorLinesUpToLote returns operator-owned lines in a route/shift whose
// lote ordering position is <= the cutoff lote's, ordered per §4.L.
func (q *Queries) ListOperatorLinesUpToLote(ctx context.Context, shiftID, routeNorm, operatorID, cutoffLoteID string) ([]LoteLineRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lineSelectColumns+`
		FROM lines li
		JOIN client_orders co ON co.id = li.client_order_id
		JOIN lotes lo ON lo.id = co.lote_id
		JOIN lotes cutoff ON cutoff.id = $4
		WHERE lo.original_shift = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
		  AND li.operator_id = $3
		  AND (lo.created_at, lo.id) <= (cutoff.created_at, cutoff.id)
		ORDER BY lo.created_at ASC, lo.id ASC, co.id ASC, li.seq_in_client ASC
	`, shiftID, routeNorm, operatorID, cutoffLoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoteLineRows(rows)
}

// ListOperatorLinesAll returns all OK operator-owned lines in a route/shift,
// used when no cutoff lote exists yet (cutoff_lote is null).
func (q *Queries) ListOperatorLinesAll(ctx context.Context, shiftID, routeNorm, operatorID string) ([]LoteLineRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lineSelectColumns+`
		FROM lines li
		JOIN client_orders co ON co.id = li.client_order_id
		JOIN lotes lo ON lo.id = co.lote_id
		WHERE lo.original_shift = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
		  AND li.operator_id = $3
		ORDER BY lo.created_at ASC, lo.id ASC, co.id ASC, li.seq_in_client ASC
	`, shiftID, routeNorm, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoteLineRows(rows)
}

// ListOperatorLinesAfterLote returns operator-owned lines strictly after a lote
// in ordering position (the "new" print selector).
func (q *Queries) ListOperatorLinesAfterLote(ctx context.Context, shiftID, routeNorm, operatorID, afterLoteID string) ([]LoteLineRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lineSelectColumns+`
		FROM lines li
		JOIN client_orders co ON co.id = li.client_order_id
		JOIN lotes lo ON lo.id = co.lote_id
		JOIN lotes after ON after.id = $4
		WHERE lo.original_shift = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
		  AND li.operator_id = $3
		  AND (lo.created_at, lo.id) > (after.created_at, after.id)
		ORDER BY lo.created_at ASC, lo.id ASC, co.id ASC, li.seq_in_client ASC
	`, shiftID, routeNorm, operatorID, afterLoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoteLineRows(rows)
}

// ListCollectorLinesAll returns every OK line in a route/shift, no operator filter.
func (q *Queries) ListCollectorLinesAll(ctx context.Context, shiftID, routeNorm string) ([]LoteLineRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lineSelectColumns+`
		FROM lines li
		JOIN client_orders co ON co.id = li.client_order_id
		JOIN lotes lo ON lo.id = co.lote_id
		WHERE lo.original_shift = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
		ORDER BY lo.created_at ASC, lo.id ASC, co.id ASC, li.seq_in_client ASC
	`, shiftID, routeNorm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoteLineRows(rows)
}

// ListCollectorLinesAfterLote returns every OK line strictly after a lote in ordering position.
func (q *Queries) ListCollectorLinesAfterLote(ctx context.Context, shiftID, routeNorm, afterLoteID string) ([]LoteLineRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lineSelectColumns+`
		FROM lines li
		JOIN client_orders co ON co.id = li.client_order_id
		JOIN lotes lo ON lo.id = co.lote_id
		JOIN lotes after ON after.id = $3
		WHERE lo.original_shift = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
		  AND (lo.created_at, lo.id) > (after.created_at, after.id)
		ORDER BY lo.created_at ASC, lo.id ASC, co.id ASC, li.seq_in_client ASC
	`, shiftID, routeNorm, afterLoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLoteLineRows(rows)
}

// GetLatestOKLote returns the most recently created OK lote for a (shift, route),
// used to seed the cutoff on first "enter route" (§4.K).
func (q *Queries) GetLatestOKLote(ctx context.Context, shiftID, routeNorm string) (*Lote, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+loteColumns+` FROM lotes
		WHERE original_shift = $1 AND route_norm = $2 AND parse_status = 'OK'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, shiftID, routeNorm)
	return scanLote(row)
}

// ListUnprintedLotesForShift returns, for a closed shift, the lotes that still
// have at least one unprinted line — the carryover engine's source set.
func (q *Queries) ListUnprintedLotesForShift(ctx context.Context, shiftID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT lo.id
		FROM lotes lo
		JOIN client_orders co ON co.lote_id = lo.id
		JOIN lines li ON li.client_order_id = co.id
		WHERE lo.original_shift = $1 AND lo.parse_status = 'OK' AND li.printed_at IS NULL
		ORDER BY lo.id
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClientOrderWithUnprinted is a client order together with its unprinted lines,
// used by the carryover engine.
type ClientOrderWithUnprinted struct {
	ClientOrder ClientOrder
	Lines       []Line
}

// ListClientOrdersWithUnprintedLines returns, for one lote, every client order
// that has at least one unprinted line, together with only those unprinted lines.
func (q *Queries) ListClientOrdersWithUnprintedLines(ctx context.Context, loteID string) ([]ClientOrderWithUnprinted, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT co.id, co.lote_id, co.name_raw, co.affinity_key, co.observations, co.created_at,
			li.id, li.seq_in_client, li.quantity, li.unit_raw, li.product_raw, li.product_norm,
			li.price, li.currency, li.match_method, li.match_score, li.family, li.functional_code, li.operator_id
		FROM client_orders co
		JOIN lines li ON li.client_order_id = co.id
		WHERE co.lote_id = $1 AND li.printed_at IS NULL
		ORDER BY co.id, li.seq_in_client
	`, loteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byClient := make(map[string]*ClientOrderWithUnprinted)
	var order []string
	for rows.Next() {
		var co ClientOrder
		var li Line
		if err := rows.Scan(
			&co.ID, &co.LoteID, &co.NameRaw, &co.AffinityKey, &co.Observations, &co.CreatedAt,
			&li.ID, &li.SeqInClient, &li.Quantity, &li.UnitRaw, &li.ProductRaw, &li.ProductNorm,
			&li.Price, &li.Currency, &li.MatchMethod, &li.MatchScore, &li.Family, &li.FunctionalCode, &li.OperatorID,
		); err != nil {
			return nil, err
		}
		entry, ok := byClient[co.ID]
		if !ok {
			entry = &ClientOrderWithUnprinted{ClientOrder: co}
			byClient[co.ID] = entry
			order = append(order, co.ID)
		}
		entry.Lines = append(entry.Lines, li)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ClientOrderWithUnprinted, 0, len(order))
	for _, id := range order {
		out = append(out, *byClient[id])
	}
	return out, nil
}

// StampLinesPrinted marks printed_at (if unset) and increments print_count for
// every given line id. kind REPRINT increments print_count without stamping
// printed_at semantics differently — callers choosing REPRINT still want the
// printed_at-null check preserved since §8 requires printed_at==nil iff count==0.
func (q *Queries) StampLinesPrinted(ctx context.Context, lineIDs []string, now time.Time) error {
	for _, id := range lineIDs {
		_, err := q.db.ExecContext(ctx, `
			UPDATE lines
			SET printed_at = COALESCE(printed_at, $2),
			    print_count = print_count + 1
			WHERE id = $1
		`, id, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// MaxLoteOrdering returns the ordering-maximal lote id among a set of lote ids,
// per the (created_at, id) ordering used throughout §4.L/§4.M.
func (q *Queries) MaxLoteOrdering(ctx context.Context, loteIDs []string) (string, error) {
	if len(loteIDs) == 0 {
		return "", nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM lotes WHERE id = ANY($1) ORDER BY created_at DESC, id DESC LIMIT 1
	`, pqStringArray(loteIDs))
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		return id, nil
	}
	return "", rows.Err()
}
