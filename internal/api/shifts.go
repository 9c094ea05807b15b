package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dacrisa/comandas-core/internal/shift"
)

type openShiftRequest struct {
	Slot string `json:"slot"`
	Date string `json:"date"`
}

func (s *Server) handleOpenShift(w http.ResponseWriter, r *http.Request) {
	var req openShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "invalid request body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "date must be YYYY-MM-DD")
		return
	}

	actor := actorFromContext(r.Context())
	sh, err := s.shiftMgr.OpenShift(r.Context(), req.Slot, date, actor)
	if err != nil {
		writeShiftError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": sh.ID, "state": sh.State, "started_at": sh.StartedAt.Time, "scheduled_end_at": sh.ScheduledEndAt.Time,
	})
}

func (s *Server) handleCloseShift(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	sh, err := s.shiftMgr.CloseShift(r.Context(), actor)
	if err != nil {
		writeShiftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": sh.ID, "state": sh.State, "ended_at": sh.EndedAt.Time,
	})
}

func (s *Server) handleActiveShift(w http.ResponseWriter, r *http.Request) {
	active, err := s.queries().GetActiveShift(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if active == nil {
		writeError(w, http.StatusNotFound, "NO_ACTIVE_SHIFT", "no shift is currently active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": active.ID, "date": active.Date, "slot": active.Slot, "state": active.State,
		"started_at": active.StartedAt.Time, "scheduled_end_at": active.ScheduledEndAt.Time,
	})
}

func writeShiftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shift.ErrShiftAlreadyActive):
		writeError(w, http.StatusConflict, "SHIFT_ALREADY_ACTIVE", err.Error())
	case errors.Is(err, shift.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "SCHEDULE_NOT_FOUND", err.Error())
	case errors.Is(err, shift.ErrDuplicateShift):
		writeError(w, http.StatusConflict, "DUPLICATE_SHIFT", err.Error())
	case errors.Is(err, shift.ErrNoActiveShift):
		writeError(w, http.StatusConflict, "NO_ACTIVE_SHIFT", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}
