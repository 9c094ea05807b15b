// Package print implements the print-progress store, line selector, and
// print-job manager (§4.K, §4.L, §4.M).
package print

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/routestate"
)

// Manager wires the print-progress store, line selector, and print-job
// lifecycle together.
type Manager struct {
	database *sql.DB
	bus      *eventbus.Bus
}

func NewManager(database *sql.DB, bus *eventbus.Bus) *Manager {
	return &Manager{database: database, bus: bus}
}

// EnterOperatorRoute implements §4.K's first-enter rule. Subsequent calls for
// the same (shift, operator, route) are no-ops; the cutoff never advances by
// re-entering.
func (m *Manager) EnterOperatorRoute(ctx context.Context, shiftID, operatorID, routeNorm string) (cutoffLote sql.NullString, err error) {
	q := db.New(m.database)

	existing, err := q.GetOperatorRouteProgress(ctx, shiftID, operatorID, routeNorm)
	if err != nil {
		return sql.NullString{}, err
	}
	if existing != nil {
		return existing.CutoffLote, nil
	}

	latest, err := q.GetLatestOKLote(ctx, shiftID, routeNorm)
	if err != nil {
		return sql.NullString{}, err
	}
	var cutoff sql.NullString
	if latest != nil {
		cutoff = sql.NullString{String: latest.ID, Valid: true}
	}

	if err := q.EnterOperatorRoute(ctx, shiftID, operatorID, routeNorm, time.Now().UTC(), cutoff); err != nil {
		return sql.NullString{}, err
	}
	// Re-read: a concurrent first-enter may have won the ON CONFLICT DO NOTHING race.
	row, err := q.GetOperatorRouteProgress(ctx, shiftID, operatorID, routeNorm)
	if err != nil {
		return sql.NullString{}, err
	}
	if row == nil {
		return sql.NullString{}, fmt.Errorf("operator route progress missing after enter")
	}
	return row.CutoffLote, nil
}

// SelectOperatorInitial implements §4.L's operator-initial selector.
func (m *Manager) SelectOperatorInitial(ctx context.Context, shiftID, operatorID, routeNorm string) ([]db.LoteLineRow, error) {
	q := db.New(m.database)
	progress, err := q.GetOperatorRouteProgress(ctx, shiftID, operatorID, routeNorm)
	if err != nil {
		return nil, err
	}
	if progress == nil || !progress.CutoffLote.Valid {
		return q.ListOperatorLinesAll(ctx, shiftID, routeNorm, operatorID)
	}
	return q.ListOperatorLinesUpToLote(ctx, shiftID, routeNorm, operatorID, progress.CutoffLote.String)
}

// SelectOperatorNew implements §4.L's operator-new selector.
func (m *Manager) SelectOperatorNew(ctx context.Context, shiftID, operatorID, routeNorm string) ([]db.LoteLineRow, error) {
	q := db.New(m.database)
	progress, err := q.GetOperatorRouteProgress(ctx, shiftID, operatorID, routeNorm)
	if err != nil {
		return nil, err
	}
	if progress == nil || !progress.LastPrintedLote.Valid {
		return q.ListOperatorLinesAll(ctx, shiftID, routeNorm, operatorID)
	}
	return q.ListOperatorLinesAfterLote(ctx, shiftID, routeNorm, operatorID, progress.LastPrintedLote.String)
}

// SelectCollectorNew implements §4.L's collector-new selector.
func (m *Manager) SelectCollectorNew(ctx context.Context, shiftID, routeNorm string) ([]db.LoteLineRow, error) {
	q := db.New(m.database)
	progress, err := q.GetCollectorRouteProgress(ctx, shiftID, routeNorm)
	if err != nil {
		return nil, err
	}
	if progress == nil || !progress.LastClosedLote.Valid {
		return q.ListCollectorLinesAll(ctx, shiftID, routeNorm)
	}
	return q.ListCollectorLinesAfterLote(ctx, shiftID, routeNorm, progress.LastClosedLote.String)
}

// CreatePrintJobParams carries the caller-resolved selection for §4.M.
type CreatePrintJobParams struct {
	Kind       string
	ActorUser  sql.NullString
	ShiftID    string
	RouteNorm  string
	Lines      []db.LoteLineRow
	PDFRef     string
	CutoffLote sql.NullString
	FromLote   sql.NullString
	ToLote     sql.NullString
	OperatorID sql.NullString // set for OPERATOR_INITIAL/OPERATOR_NEW, advances operator cursor
}

// CreatePrintJob implements §4.M. REPRINT jobs (Kind == db.PrintKindReprint)
// do not advance cursors and do not trigger §4.G.
func (m *Manager) CreatePrintJob(ctx context.Context, p CreatePrintJobParams) (string, error) {
	jobID := uuid.NewString()
	now := time.Now().UTC()

	var maxLoteID string

	err := db.RunInTx(ctx, m.database, func(q *db.Queries) error {
		pj := &db.PrintJob{
			ID: jobID, ShiftID: p.ShiftID, RouteNorm: p.RouteNorm, ActorUser: p.ActorUser,
			Kind: p.Kind, Status: db.PrintStatusPDFReady, PDFRef: sql.NullString{String: p.PDFRef, Valid: p.PDFRef != ""},
			CutoffLote: p.CutoffLote, FromLote: p.FromLote, ToLote: p.ToLote,
		}
		if err := q.InsertPrintJob(ctx, pj); err != nil {
			return err
		}

		loteIDs := make([]string, 0, len(p.Lines))
		for _, line := range p.Lines {
			if err := q.InsertPrintJobItem(ctx, jobID, line.ID); err != nil {
				return err
			}
			loteIDs = append(loteIDs, line.LoteID)
		}

		if err := q.StampLinesPrinted(ctx, lineIDs(p.Lines), now); err != nil {
			return err
		}

		if p.Kind != db.PrintKindReprint && len(loteIDs) > 0 {
			max, err := q.MaxLoteOrdering(ctx, loteIDs)
			if err != nil {
				return err
			}
			maxLoteID = max
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if _, err := m.bus.Publish(ctx, db.New(m.database), nil, eventbus.TypePrintEmitted, eventbus.EntityPrintJob, jobID,
		map[string]interface{}{"shift_id": p.ShiftID, "route_norm": p.RouteNorm, "kind": p.Kind, "lines_count": len(p.Lines)}); err != nil {
		return jobID, err
	}

	if p.Kind == db.PrintKindReprint || maxLoteID == "" {
		return jobID, nil
	}

	if err := db.RunInTx(ctx, m.database, func(q *db.Queries) error {
		if p.Kind == db.PrintKindCollectorNew {
			return q.AdvanceCollectorLastClosed(ctx, p.ShiftID, p.RouteNorm, maxLoteID, now)
		}
		if p.OperatorID.Valid {
			return q.AdvanceOperatorLastPrinted(ctx, p.ShiftID, p.OperatorID.String, p.RouteNorm, maxLoteID, now)
		}
		return nil
	}); err != nil {
		return jobID, err
	}

	var stateEnv *eventbus.Envelope
	if err := db.RunInTx(ctx, m.database, func(q *db.Queries) error {
		_, env, err := routestate.Apply(ctx, q, m.bus, p.ShiftID, p.RouteNorm, now)
		stateEnv = env
		return err
	}); err != nil {
		return jobID, err
	}
	if stateEnv != nil {
		m.bus.FanOut(*stateEnv)
	}

	return jobID, nil
}

// RecordFailedPrintJob records a FAILED job when PDF generation failed before
// CreatePrintJob was reached. Route state is not touched, no lines are stamped.
func (m *Manager) RecordFailedPrintJob(ctx context.Context, kind string, actorUser sql.NullString, shiftID, routeNorm, errorText string) (string, error) {
	jobID := uuid.NewString()
	err := db.RunInTx(ctx, m.database, func(q *db.Queries) error {
		pj := &db.PrintJob{
			ID: jobID, ShiftID: shiftID, RouteNorm: routeNorm, ActorUser: actorUser,
			Kind: kind, Status: db.PrintStatusFailed, ErrorText: sql.NullString{String: errorText, Valid: true},
		}
		return q.InsertPrintJob(ctx, pj)
	})
	return jobID, err
}

func lineIDs(rows []db.LoteLineRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
