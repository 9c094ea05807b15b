package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/routestate"
)

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	shiftID := r.URL.Query().Get("shift_id")
	if shiftID == "" {
		active, err := s.queries().GetActiveShift(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		if active == nil {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_SHIFT", "no shift_id given and no shift is active")
			return
		}
		shiftID = active.ID
	}

	summaries, err := s.queries().ListRouteDaySummaries(r.Context(), shiftID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	out := make([]map[string]interface{}, len(summaries))
	for i, sm := range summaries {
		out[i] = map[string]interface{}{
			"route_id":      sm.RouteNorm,
			"route_name":    sm.RouteNorm,
			"visual_state":  sm.VisualState,
			"logical_state": sm.LogicalState,
			"unprinted":     sm.Unprinted,
			"total_lines":   sm.TotalLines,
			"total_clients": sm.TotalClients,
			"lotes_count":   sm.LotesCount,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkCollected(w http.ResponseWriter, r *http.Request) {
	routeNorm := mux.Vars(r)["route_id"]

	active, err := s.queries().GetActiveShift(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if active == nil {
		writeError(w, http.StatusConflict, "NO_ACTIVE_SHIFT", "no shift is currently active")
		return
	}

	err = db.RunInTx(r.Context(), s.database, func(q *db.Queries) error {
		rd, err := q.GetRouteDayForUpdate(r.Context(), active.ID, routeNorm)
		if err != nil {
			return err
		}
		if rd == nil {
			return errRouteNotFound
		}
		return q.MarkCollected(r.Context(), active.ID, routeNorm, time.Now().UTC())
	})
	if err == errRouteNotFound {
		writeError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "no such route in the active shift")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	var stateEnv *eventbus.Envelope
	err = db.RunInTx(r.Context(), s.database, func(q *db.Queries) error {
		_, env, err := routestate.Apply(r.Context(), q, s.bus, active.ID, routeNorm, time.Now().UTC())
		stateEnv = env
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if stateEnv != nil {
		s.bus.FanOut(*stateEnv)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

var errRouteNotFound = &routeNotFoundError{}

type routeNotFoundError struct{}

func (*routeNotFoundError) Error() string { return "route not found" }
