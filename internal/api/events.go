package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
)

const (
	sseReplayLimit   = 100
	sseHeartbeat     = 30 * time.Second
	sseWriteDeadline = 30 * time.Second
)

// handleEventsStream implements §4.N: replay then live fan-out, deduplicated
// by event id, framed as SSE.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming not supported")
		return
	}
	rc := http.NewResponseController(w)
	ctx := r.Context()

	after := time.Time{}
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if t, err := time.Parse(time.RFC3339Nano, last); err == nil {
			after = t
		}
	}

	seen := make(map[string]bool)

	replayed, err := s.queries().ListEventsAfter(ctx, after, sseReplayLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	for _, ev := range replayed {
		seen[ev.ID] = true
		writeSSEEvent(w, flusher, rc, ev.TS, "evento", eventEnvelopeJSON(ev))
	}

	liveCh, unsubscribe, err := s.bus.Subscribe(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-liveCh:
			if !ok {
				return
			}
			if seen[env.ID] {
				continue
			}
			seen[env.ID] = true
			raw, err := json.Marshal(env)
			if err != nil {
				continue
			}
			rc.SetWriteDeadline(time.Now().Add(sseWriteDeadline))
			fmt.Fprintf(w, "id: %s\nevent: evento\ndata: %s\n\n", env.TS.Format(time.RFC3339Nano), raw)
			flusher.Flush()

		case <-heartbeat.C:
			rc.SetWriteDeadline(time.Now().Add(sseWriteDeadline))
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, rc *http.ResponseController, ts time.Time, event string, data []byte) {
	rc.SetWriteDeadline(time.Now().Add(sseWriteDeadline))
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ts.Format(time.RFC3339Nano), event, data)
	flusher.Flush()
}

// eventEnvelopeJSON renders a persisted row in the same wire shape as the
// live eventbus.Envelope, so replayed and live frames are indistinguishable
// to the client.
func eventEnvelopeJSON(ev db.Event) []byte {
	var actor *string
	if ev.Actor.Valid {
		actor = &ev.Actor.String
	}
	raw, _ := json.Marshal(eventbus.Envelope{
		ID: ev.ID, TS: ev.TS, Actor: actor, Type: ev.Type,
		EntityType: ev.EntityType, EntityID: ev.EntityID, Payload: ev.Payload,
	})
	return raw
}

// handleEventsPage implements GET /api/events (paged history).
func (s *Server) handleEventsPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType := q.Get("entity_type")
	eventType := q.Get("type")

	limit := 50
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	events, total, err := s.queries().ListEventsPage(r.Context(), entityType, eventType, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"pagination": map[string]interface{}{
			"total": total, "limit": limit, "offset": offset,
		},
	})
}
