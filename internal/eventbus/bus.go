// Package eventbus implements the append-only event log and its live
// fan-out (§4.B). Persistence always happens first; fan-out to NATS must
// never be observable before the row that justifies it is durable. Publish
// does both for callers holding a bare (non-transactional) Queries, where
// the insert itself is the unit of durability. Callers whose Queries is
// bound to an open transaction must use PublishPersistOnly inside the
// transaction and call FanOut only after it commits — otherwise a live
// subscriber could see an event for a write that later rolls back. The NATS
// subscription itself provides the bounded, drop-on-overflow buffer per
// subscriber that §5 calls for.
package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/queue"
)

// pendingMsgLimit and pendingBytesLimit bound each subscriber's NATS buffer;
// a slow subscriber starts dropping messages rather than stalling the bus.
const (
	pendingMsgLimit   = 64
	pendingBytesLimit = 1 << 20
)

// Bus publishes domain events to the durable log and fans them out live.
type Bus struct {
	nats *queue.Manager
}

// New wraps an already-connected NATS manager.
func New(nats *queue.Manager) *Bus {
	return &Bus{nats: nats}
}

// Envelope is the wire shape for both the durable row and the NATS payload.
type Envelope struct {
	ID         string          `json:"id"`
	TS         time.Time       `json:"ts"`
	Actor      *string         `json:"actor,omitempty"`
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Publish appends one row via q (which may be tx-bound) and, if that
// succeeds, publishes to NATS. When q is bound to an open transaction the
// caller is responsible for only relying on delivery after that transaction
// commits — call PublishPersistOnly inside the tx and FanOut after commit
// for that case instead of this one directly inside a still-open tx.
func (b *Bus) Publish(ctx context.Context, q *db.Queries, actor *string, eventType, entityType, entityID string, payload interface{}) (Envelope, error) {
	env, err := b.buildEnvelope(actor, eventType, entityType, entityID, payload)
	if err != nil {
		return Envelope{}, err
	}

	var actorNull sql.NullString
	if env.Actor != nil {
		actorNull = sql.NullString{String: *env.Actor, Valid: true}
	}

	if err := q.InsertEvent(ctx, env.ID, env.TS, actorNull, env.Type, env.EntityType, env.EntityID, env.Payload); err != nil {
		return Envelope{}, err
	}

	b.fanOut(env)
	return env, nil
}

// PublishPersistOnly appends the row only, returning the envelope so the
// caller can fan it out later with FanOut once its transaction commits —
// this is how the batch processor keeps persistence and fan-out straddling
// a commit boundary (§4.H step 9, §4.B "persistence first").
func (b *Bus) PublishPersistOnly(ctx context.Context, q *db.Queries, actor *string, eventType, entityType, entityID string, payload interface{}) (Envelope, error) {
	env, err := b.buildEnvelope(actor, eventType, entityType, entityID, payload)
	if err != nil {
		return Envelope{}, err
	}

	var actorNull sql.NullString
	if env.Actor != nil {
		actorNull = sql.NullString{String: *env.Actor, Valid: true}
	}

	if err := q.InsertEvent(ctx, env.ID, env.TS, actorNull, env.Type, env.EntityType, env.EntityID, env.Payload); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// FanOut delivers an already-persisted envelope to live subscribers. Never
// call this before the transaction that persisted it has committed.
func (b *Bus) FanOut(env Envelope) {
	b.fanOut(env)
}

func (b *Bus) buildEnvelope(actor *string, eventType, entityType, entityID string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	if raw == nil {
		raw = json.RawMessage(`{}`)
	}
	return Envelope{
		ID:         uuid.NewString(),
		TS:         time.Now().UTC(),
		Actor:      actor,
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    raw,
	}, nil
}

func (b *Bus) fanOut(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("ERROR: eventbus: marshal envelope for fan-out: %v", err)
		return
	}
	if err := b.nats.Publish(queue.SubjectEventsPublished, data); err != nil {
		log.Printf("ERROR: eventbus: publish to NATS: %v", err)
	}
}

// Subscribe attaches a live subscriber bounded at pendingMsgLimit /
// pendingBytesLimit; once that buffer fills, NATS drops further messages for
// this subscription rather than blocking the publisher (§5). The returned
// channel is closed when ctx is done or Unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Envelope, func(), error) {
	out := make(chan Envelope, pendingMsgLimit)

	sub, err := b.nats.Conn().Subscribe(queue.SubjectEventsPublished, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("ERROR: eventbus: unmarshal envelope: %v", err)
			return
		}
		select {
		case out <- env:
		default:
			// subscriber channel full: drop, matching the NATS-level
			// pending-limit drop behaviour for slow consumers
		}
	})
	if err != nil {
		return nil, nil, err
	}
	if err := sub.SetPendingLimits(pendingMsgLimit, pendingBytesLimit); err != nil {
		log.Printf("WARN: eventbus: set pending limits: %v", err)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(out)
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return out, unsubscribe, nil
}
