package db

import (
	"context"
	"database/sql"
	"time"
)

// CreateProductsCatalogVersion inserts a new, inactive products catalog version.
func (q *Queries) CreateProductsCatalogVersion(ctx context.Context, version int) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO products_catalog_versions (version, active) VALUES ($1, FALSE)
		ON CONFLICT (version) DO NOTHING
	`, version)
	return err
}

// InsertProduct adds one immutable product row to a catalog version.
func (q *Queries) InsertProduct(ctx context.Context, id string, version int, normName string, family int) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO products (id, version, norm_name, family) VALUES ($1, $2, $3, $4)
		ON CONFLICT (version, norm_name) DO NOTHING
	`, id, version, normName, family)
	return err
}

// ActivateProductsCatalog flips the single active bit to the given version,
// inside a transaction supplied by the caller (the Queries itself may already
// be tx-bound via WithTx).
func (q *Queries) ActivateProductsCatalog(ctx context.Context, version int, now time.Time) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE products_catalog_versions SET active = FALSE WHERE active = TRUE`); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE products_catalog_versions SET active = TRUE, activated_at = $2 WHERE version = $1
	`, version, now)
	return err
}

// GetActiveProducts returns every product of the active catalog version,
// ordered alphabetically by norm_name — the catalog loader's guaranteed
// insertion order used for deterministic fuzzy-match tie-breaking (§4.E).
func (q *Queries) GetActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT p.id, p.version, p.norm_name, p.family
		FROM products p
		JOIN products_catalog_versions v ON v.version = p.version
		WHERE v.active = TRUE
		ORDER BY p.norm_name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Version, &p.NormName, &p.Family); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetActiveProductsCatalogVersion returns the currently active version number, or
// (0, false) if no catalog is active.
func (q *Queries) GetActiveProductsCatalogVersion(ctx context.Context) (int, bool, error) {
	var v int
	err := q.db.QueryRowContext(ctx, `SELECT version FROM products_catalog_versions WHERE active = TRUE`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// CreateRoutesCatalogVersion inserts a new, inactive routes catalog version.
func (q *Queries) CreateRoutesCatalogVersion(ctx context.Context, version int) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO routes_catalog_versions (version, active) VALUES ($1, FALSE)
		ON CONFLICT (version) DO NOTHING
	`, version)
	return err
}

// InsertRoute adds one immutable route row to a catalog version.
func (q *Queries) InsertRoute(ctx context.Context, id string, version int, normName string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO routes (id, version, norm_name) VALUES ($1, $2, $3)
		ON CONFLICT (version, norm_name) DO NOTHING
	`, id, version, normName)
	return err
}

// ActivateRoutesCatalog flips the single active bit to the given version.
func (q *Queries) ActivateRoutesCatalog(ctx context.Context, version int, now time.Time) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE routes_catalog_versions SET active = FALSE WHERE active = TRUE`); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE routes_catalog_versions SET active = TRUE, activated_at = $2 WHERE version = $1
	`, version, now)
	return err
}

// GetActiveRoutesNormSet returns the active routes catalog as a set of norm names.
func (q *Queries) GetActiveRoutesNormSet(ctx context.Context) (map[string]bool, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT r.norm_name
		FROM routes r
		JOIN routes_catalog_versions v ON v.version = r.version
		WHERE v.active = TRUE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out[n] = true
	}
	return out, rows.Err()
}

// GetActiveRoutesCatalogVersion returns the currently active version number, or
// (0, false) if no catalog is active.
func (q *Queries) GetActiveRoutesCatalogVersion(ctx context.Context) (int, bool, error) {
	var v int
	err := q.db.QueryRowContext(ctx, `SELECT version FROM routes_catalog_versions WHERE active = TRUE`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
