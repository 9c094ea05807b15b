// Package batch implements the batch processor (§4.H): orchestrates the
// parser, matcher, and assignment engine for one lote inside a single
// serializable transaction, then transitions route state after commit.
package batch

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dacrisa/comandas-core/internal/assignment"
	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/matcher"
	"github.com/dacrisa/comandas-core/internal/normalize"
	"github.com/dacrisa/comandas-core/internal/parser"
	"github.com/dacrisa/comandas-core/internal/routestate"
)

// familyOthers is the catch-all functional code for unmatched products (§4.H step 7).
const familyOthers = 6

// Processor orchestrates §4.D-F for one lote and advances route state.
type Processor struct {
	database            *sql.DB
	bus                 *eventbus.Bus
	fuzzyMatchThreshold int
}

func NewProcessor(database *sql.DB, bus *eventbus.Bus, fuzzyMatchThreshold int) *Processor {
	return &Processor{database: database, bus: bus, fuzzyMatchThreshold: fuzzyMatchThreshold}
}

// ProcessLote implements §4.H. It is idempotent: re-invoking on an
// already-OK lote is a no-op.
func (p *Processor) ProcessLote(ctx context.Context, loteID string) error {
	var routeNorm string
	var shouldTransitionRoute bool
	var pending []eventbus.Envelope

	err := db.RunInTx(ctx, p.database, func(q *db.Queries) error {
		lote, err := q.GetLote(ctx, loteID)
		if err != nil {
			return err
		}
		if lote == nil {
			return fmt.Errorf("lote %s not found", loteID)
		}
		if lote.ParseStatus == db.ParseStatusOK {
			return nil // step 1: already terminal-but-successful
		}

		shift, err := q.GetActiveShift(ctx)
		if err != nil {
			return err
		}
		if shift == nil {
			env, err := p.failParse(ctx, q, lote.ID, "no active shift")
			if err != nil {
				return err
			}
			pending = append(pending, env)
			return nil
		}

		productsVersion, hasProducts, err := q.GetActiveProductsCatalogVersion(ctx)
		if err != nil {
			return err
		}
		routesVersion, hasRoutes, err := q.GetActiveRoutesCatalogVersion(ctx)
		if err != nil {
			return err
		}
		if hasProducts && hasRoutes {
			if err := q.BindCatalogVersions(ctx, lote.ID, productsVersion, routesVersion); err != nil {
				return err
			}
		}

		routeSet, err := q.GetActiveRoutesNormSet(ctx)
		if err != nil {
			return err
		}
		resolvedRoute, ok := parser.ResolveRoute(lote.SubjectRaw, routeSet)
		if !ok {
			if err := q.SetLoteRouteError(ctx, lote.ID, resolvedRoute, "route not found in active catalog"); err != nil {
				return err
			}
			env, err := p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeRouteParseError, eventbus.EntityLote, lote.ID,
				map[string]interface{}{"route_norm": resolvedRoute})
			if err != nil {
				return err
			}
			pending = append(pending, env)
			return nil
		}
		routeNorm = resolvedRoute

		if _, err := q.FindOrCreateRouteDay(ctx, shift.ID, routeNorm); err != nil {
			return err
		}

		clients, issues, ok := parser.ParseBody(lote.BodyRaw)
		if !ok {
			msg := "body parse failed"
			if len(issues) > 0 {
				msg = issues[0].Message
			}
			if err := q.SetLoteParseError(ctx, lote.ID, msg); err != nil {
				return err
			}
			env, err := p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeBodyParseError, eventbus.EntityLote, lote.ID,
				map[string]interface{}{"message": msg})
			if err != nil {
				return err
			}
			pending = append(pending, env)
			return nil
		}

		products, err := q.GetActiveProducts(ctx)
		if err != nil {
			return err
		}
		catalog := make([]matcher.CatalogEntry, len(products))
		for i, prod := range products {
			catalog[i] = matcher.CatalogEntry{ProductID: prod.ID, NormName: prod.NormName, Family: prod.Family}
		}

		now := time.Now().UTC()
		for _, client := range clients {
			clientID := uuid.NewString()
			affinityKey := normalize.Norm(client.NameRaw)
			if err := q.InsertClientOrder(ctx, clientID, lote.ID, client.NameRaw, affinityKey, nullString(client.Observations)); err != nil {
				return err
			}

			for i, pl := range client.Lines {
				result := matcher.Match(pl.ProductRaw, catalog, p.fuzzyMatchThreshold)

				line := &db.Line{
					ID:            uuid.NewString(),
					ClientOrderID: clientID,
					SeqInClient:   i + 1,
					Quantity:      pl.Quantity,
					UnitRaw:       pl.UnitRaw,
					ProductRaw:    pl.ProductRaw,
					ProductNorm:   normalize.Norm(pl.ProductRaw),
					Price:         sql.NullFloat64{Float64: pl.Price, Valid: true},
					Currency:      "USD", // parser extracts no currency; InsertLine always supplies this column explicitly
					PrintCount:    0,
				}

				if result.Method == matcher.MethodNone {
					line.Family = familyOthers
					line.FunctionalCode = familyOthers
					env, err := p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeProductNotFound, eventbus.EntityLine, line.ID,
						map[string]interface{}{"product_raw": pl.ProductRaw})
					if err != nil {
						return err
					}
					pending = append(pending, env)
				} else {
					line.Family = result.Family
					line.FunctionalCode = result.Family
					line.MatchMethod = sql.NullString{String: string(result.Method), Valid: true}
					line.MatchScore = sql.NullFloat64{Float64: result.Score, Valid: true}

					if result.Method == matcher.MethodFuzzy {
						env, err := p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeProductFuzzyMatch, eventbus.EntityLine, line.ID,
							map[string]interface{}{"product_raw": pl.ProductRaw, "score": result.Score})
						if err != nil {
							return err
						}
						pending = append(pending, env)
					}

					assignResult, err := assignment.Assign(ctx, q, shift.ID, client.NameRaw, result.Family)
					if err != nil {
						return err
					}
					if assignResult.Reason == assignment.ReasonNoPool {
						env, err := p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeEmptyOperatorPool, eventbus.EntityLine, line.ID,
							map[string]interface{}{"functional_code": result.Family})
						if err != nil {
							return err
						}
						pending = append(pending, env)
					} else {
						line.OperatorID = assignment.NullIfEmpty(assignResult.OperatorID)
						line.AssignedAt = sql.NullTime{Time: now, Valid: true}
					}
				}

				if err := q.InsertLine(ctx, line); err != nil {
					return err
				}
			}
		}

		if err := q.SetLoteOK(ctx, lote.ID, routeNorm); err != nil {
			return err
		}
		env, err := p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeLoteProcessed, eventbus.EntityLote, lote.ID,
			map[string]interface{}{"route_norm": routeNorm})
		if err != nil {
			return err
		}
		pending = append(pending, env)

		shouldTransitionRoute = true
		return nil
	})

	if err != nil {
		p.recordProcessError(ctx, loteID, err)
		return err
	}

	for _, env := range pending {
		p.bus.FanOut(env)
	}

	if shouldTransitionRoute {
		if err := p.transitionAfterCommit(ctx, routeNorm); err != nil {
			log.Printf("ERROR: batch: post-commit route transition for route %s: %v", routeNorm, err)
		}
	}

	return nil
}

// failParse sets ERROR_PARSE and persists the LOTE_PROCESS_ERROR row inside
// the same transaction as the caller. It does not itself start or commit a
// transaction, nor fan out: the caller owns that once its transaction commits.
func (p *Processor) failParse(ctx context.Context, q *db.Queries, loteID, message string) (eventbus.Envelope, error) {
	if err := q.SetLoteParseError(ctx, loteID, message); err != nil {
		return eventbus.Envelope{}, err
	}
	return p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeLoteProcessError, eventbus.EntityLote, loteID,
		map[string]interface{}{"message": message})
}

// recordProcessError persists ERROR_PARSE + LOTE_PROCESS_ERROR in a fresh
// transaction after the main processing transaction rolled back, then fans
// out once that transaction has committed.
func (p *Processor) recordProcessError(ctx context.Context, loteID string, procErr error) {
	var env eventbus.Envelope
	err := db.RunInTx(ctx, p.database, func(q *db.Queries) error {
		if err := q.SetLoteParseError(ctx, loteID, procErr.Error()); err != nil {
			return err
		}
		var err error
		env, err = p.bus.PublishPersistOnly(ctx, q, nil, eventbus.TypeLoteProcessError, eventbus.EntityLote, loteID,
			map[string]interface{}{"message": procErr.Error()})
		return err
	})
	if err != nil {
		log.Printf("ERROR: batch: failed to record process error for lote %s: %v", loteID, err)
		return
	}
	p.bus.FanOut(env)
}

func (p *Processor) transitionAfterCommit(ctx context.Context, routeNorm string) error {
	shiftID, err := p.activeShiftID(ctx)
	if err != nil || shiftID == "" {
		return err
	}
	var stateEnv *eventbus.Envelope
	if err := db.RunInTx(ctx, p.database, func(q *db.Queries) error {
		_, env, err := routestate.Apply(ctx, q, p.bus, shiftID, routeNorm, time.Now().UTC())
		stateEnv = env
		return err
	}); err != nil {
		return err
	}
	if stateEnv != nil {
		p.bus.FanOut(*stateEnv)
	}
	return nil
}

func (p *Processor) activeShiftID(ctx context.Context) (string, error) {
	q := db.New(p.database)
	shift, err := q.GetActiveShift(ctx)
	if err != nil {
		return "", err
	}
	if shift == nil {
		return "", nil
	}
	return shift.ID, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
