// Package routestate implements the route-state manager (§4.G): a pure
// transition function over (unprinted count, prior visual state, logical
// state), plus the DB-backed wrapper that row-locks a RouteDay for the
// duration of one transition.
package routestate

import (
	"context"
	"time"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
)

type VisualState string

const (
	VisualBlue  VisualState = db.VisualBlue
	VisualGreen VisualState = db.VisualGreen
	VisualRed   VisualState = db.VisualRed
)

type LogicalState string

const (
	LogicalActive    LogicalState = db.LogicalActive
	LogicalCollected LogicalState = db.LogicalCollected
)

// Inputs is everything the pure transition function needs.
type Inputs struct {
	Unprinted int
	Prior     VisualState
	Logical   LogicalState
}

// TransitionEvent names which event the transition should emit, if any.
type TransitionEvent string

const (
	EventNone          TransitionEvent = ""
	EventAlertRed      TransitionEvent = eventbus.TypeRouteAlertRed
	EventCompleteGreen TransitionEvent = eventbus.TypeRouteCompleteGreen
)

// Transition implements §4.G's visual-state function exactly.
func Transition(in Inputs) (VisualState, TransitionEvent) {
	if in.Unprinted == 0 {
		if in.Prior != VisualGreen {
			return VisualGreen, EventCompleteGreen
		}
		return VisualGreen, EventNone
	}

	if in.Prior == VisualGreen || in.Logical == LogicalCollected {
		if in.Prior != VisualRed {
			return VisualRed, EventAlertRed
		}
		return VisualRed, EventNone
	}

	if in.Prior == VisualRed {
		return VisualRed, EventNone
	}

	return VisualBlue, EventNone
}

// Apply row-locks RouteDay(shiftID, routeNorm), evaluates Transition, persists
// the new visual state (and bumps reactivations_count when a COLLECTED route
// is promoted out of GREEN by a new lote), and persists the resulting event
// row if any. q must be bound to an open transaction for the row lock to
// hold, so fan-out cannot happen here: Apply only returns the pending
// envelope, and the caller must pass it to bus.FanOut once its own
// transaction has committed (§4.H step 9 — fan-out must follow persistence).
func Apply(ctx context.Context, q *db.Queries, bus *eventbus.Bus, shiftID, routeNorm string, now time.Time) (VisualState, *eventbus.Envelope, error) {
	rd, err := q.GetRouteDayForUpdate(ctx, shiftID, routeNorm)
	if err != nil {
		return "", nil, err
	}

	unprinted, err := q.CountUnprinted(ctx, shiftID, routeNorm)
	if err != nil {
		return "", nil, err
	}

	prior := VisualState(rd.VisualState)
	logical := LogicalState(rd.LogicalState)

	wasCollectedPromoted := logical == LogicalCollected && prior == VisualGreen && unprinted > 0

	next, evt := Transition(Inputs{Unprinted: unprinted, Prior: prior, Logical: logical})

	if err := q.UpdateRouteDayVisual(ctx, shiftID, routeNorm, string(next), now); err != nil {
		return "", nil, err
	}
	if wasCollectedPromoted {
		if err := q.IncrementReactivations(ctx, shiftID, routeNorm); err != nil {
			return "", nil, err
		}
	}

	if evt == EventNone || bus == nil {
		return next, nil, nil
	}

	payload := map[string]interface{}{
		"shift_id":   shiftID,
		"route_norm": routeNorm,
		"unprinted":  unprinted,
	}
	env, err := bus.PublishPersistOnly(ctx, q, nil, string(evt), eventbus.EntityRouteDay, routeNorm, payload)
	if err != nil {
		return "", nil, err
	}

	return next, &env, nil
}
