// Package carryover implements the carryover engine (§4.J): copying unprinted
// lines of the previous closed shift into a newly opened one.
package carryover

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/routestate"
)

// Engine runs the carryover algorithm inside shift.Manager.OpenShift, before
// the first poll.
type Engine struct {
	database *sql.DB
	bus      *eventbus.Bus
}

func NewEngine(database *sql.DB, bus *eventbus.Bus) *Engine {
	return &Engine{database: database, bus: bus}
}

// Run implements §4.J. It is a no-op (returning nil) if there is no
// previously closed shift.
func (e *Engine) Run(ctx context.Context, newShiftID string) error {
	q := db.New(e.database)

	prev, err := q.GetMostRecentClosedShift(ctx)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}

	loteIDs, err := q.ListUnprintedLotesForShift(ctx, prev.ID)
	if err != nil {
		return fmt.Errorf("listing unprinted lotes of %s: %w", prev.ID, err)
	}

	affectedRoutes := make(map[string]bool)

	for _, sourceLoteID := range loteIDs {
		if err := e.carryOverLote(ctx, prev.ID, newShiftID, sourceLoteID, affectedRoutes); err != nil {
			log.Printf("ERROR: carryover: lote %s: %v", sourceLoteID, err)
		}
	}

	for routeNorm := range affectedRoutes {
		var stateEnv *eventbus.Envelope
		if err := db.RunInTx(ctx, e.database, func(tq *db.Queries) error {
			_, env, err := routestate.Apply(ctx, tq, e.bus, newShiftID, routeNorm, time.Now().UTC())
			stateEnv = env
			return err
		}); err != nil {
			log.Printf("ERROR: carryover: route-state transition for %s: %v", routeNorm, err)
			continue
		}
		if stateEnv != nil {
			e.bus.FanOut(*stateEnv)
		}
	}

	return nil
}

func (e *Engine) carryOverLote(ctx context.Context, prevShiftID, newShiftID, sourceLoteID string, affectedRoutes map[string]bool) error {
	source, err := db.New(e.database).GetLote(ctx, sourceLoteID)
	if err != nil {
		return err
	}
	if source == nil || !source.RouteNorm.Valid {
		return nil
	}
	routeNorm := source.RouteNorm.String

	var carriedEnv *eventbus.Envelope
	err = db.RunInTx(ctx, e.database, func(q *db.Queries) error {
		if _, err := q.FindOrCreateRouteDay(ctx, newShiftID, routeNorm); err != nil {
			return err
		}

		clientsWithUnprinted, err := q.ListClientOrdersWithUnprintedLines(ctx, sourceLoteID)
		if err != nil {
			return err
		}
		if len(clientsWithUnprinted) == 0 {
			return nil
		}

		newLoteID := uuid.NewString()
		if err := q.InsertCarriedOverLote(ctx, newLoteID, source.SubjectRaw, source.BodyRaw, routeNorm,
			source.ProductsCatalogVersion, source.RoutesCatalogVersion, newShiftID); err != nil {
			return err
		}

		lineCount := 0
		for _, cwu := range clientsWithUnprinted {
			newClientID := uuid.NewString()
			if err := q.InsertClientOrder(ctx, newClientID, newLoteID, cwu.ClientOrder.NameRaw, cwu.ClientOrder.AffinityKey, cwu.ClientOrder.Observations); err != nil {
				return err
			}
			for _, line := range cwu.Lines {
				newLine := line
				newLine.ID = uuid.NewString()
				newLine.ClientOrderID = newClientID
				newLine.PrintedAt = sql.NullTime{}
				newLine.PrintCount = 0
				if err := q.InsertLine(ctx, &newLine); err != nil {
					return err
				}
				lineCount++
			}
		}

		env, err := e.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeLoteCarriedOver, eventbus.EntityLote, newLoteID,
			map[string]interface{}{"source_lote_id": sourceLoteID, "new_lote_id": newLoteID, "line_count": lineCount})
		if err != nil {
			return err
		}
		carriedEnv = &env

		affectedRoutes[routeNorm] = true
		return nil
	})
	if err != nil {
		return err
	}
	if carriedEnv != nil {
		e.bus.FanOut(*carriedEnv)
	}
	return nil
}
