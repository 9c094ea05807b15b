// Package assignment implements the deterministic operator-assignment
// engine (§4.F): pool lookup, sticky per-shift affinity, and round-robin
// fallback, serialized by the DB row locks described in §5.
package assignment

import (
	"context"
	"database/sql"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/normalize"
)

// Reason explains why a given operator (or none) was chosen.
type Reason string

const (
	ReasonAffinity   Reason = "AFFINITY"
	ReasonRoundRobin Reason = "ROUND_ROBIN"
	ReasonNoPool     Reason = "NO_POOL"
)

// Result is the outcome of one assignment call.
type Result struct {
	OperatorID string // empty when Reason == ReasonNoPool
	Reason     Reason
}

// Assign implements §4.F. q must be bound to the caller's transaction so the
// round-robin cursor row lock (acquired by GetRoundRobinCursorForUpdate)
// holds for the duration of the decision.
func Assign(ctx context.Context, q *db.Queries, shiftID, clientNameRaw string, functionalCode int) (Result, error) {
	affinityKey := normalize.Norm(clientNameRaw)

	pool, err := q.GetPool(ctx, shiftID, functionalCode)
	if err != nil {
		return Result{}, err
	}
	if len(pool) == 0 {
		return Result{Reason: ReasonNoPool}, nil
	}

	if op, found, err := q.GetAffinity(ctx, shiftID, affinityKey, functionalCode); err != nil {
		return Result{}, err
	} else if found && inPool(op, pool) {
		return Result{OperatorID: op, Reason: ReasonAffinity}, nil
	}

	last, hasLast, err := q.GetRoundRobinCursorForUpdate(ctx, shiftID, functionalCode)
	if err != nil {
		return Result{}, err
	}

	next := nextInPool(last, hasLast, pool)

	if err := q.SetRoundRobinCursor(ctx, shiftID, functionalCode, next); err != nil {
		return Result{}, err
	}
	if err := q.UpsertAffinity(ctx, shiftID, affinityKey, functionalCode, next); err != nil {
		return Result{}, err
	}

	return Result{OperatorID: next, Reason: ReasonRoundRobin}, nil
}

func inPool(operatorID string, pool []string) bool {
	return indexOf(operatorID, pool) >= 0
}

// nextInPool picks the pool element immediately after last, wrapping to the
// first; if there is no last, or last is no longer in the pool, it picks the
// first pool element (§4.F step 4).
func nextInPool(last string, hasLast bool, pool []string) string {
	if hasLast {
		if idx := indexOf(last, pool); idx >= 0 {
			return pool[(idx+1)%len(pool)]
		}
	}
	return pool[0]
}

func indexOf(operatorID string, pool []string) int {
	for i, p := range pool {
		if p == operatorID {
			return i
		}
	}
	return -1
}

// NullIfEmpty is a small helper for callers building sql.NullString from an
// operator id that may be empty (NO_POOL case).
func NullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
