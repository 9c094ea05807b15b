package api

import (
	"database/sql"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/google/uuid"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/print"
)

// operatorFromRequest pulls the operator id either from the attributed actor
// or an explicit query param, since print endpoints act on behalf of whoever
// is standing at the station.
func operatorFromRequest(r *http.Request) string {
	if op := r.URL.Query().Get("operator_id"); op != "" {
		return op
	}
	if actor := actorFromContext(r.Context()); actor != nil {
		return *actor
	}
	return ""
}

func (s *Server) activeShiftOrError(w http.ResponseWriter, r *http.Request) (*db.Shift, bool) {
	active, err := s.queries().GetActiveShift(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return nil, false
	}
	if active == nil {
		writeError(w, http.StatusConflict, "NO_ACTIVE_SHIFT", "no shift is currently active")
		return nil, false
	}
	return active, true
}

func (s *Server) handleOperatorEnter(w http.ResponseWriter, r *http.Request) {
	routeNorm := mux.Vars(r)["route"]
	operatorID := operatorFromRequest(r)
	if operatorID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "operator_id is required")
		return
	}

	active, ok := s.activeShiftOrError(w, r)
	if !ok {
		return
	}

	cutoff, err := s.printMgr.EnterOperatorRoute(r.Context(), active.ID, operatorID, routeNorm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	resp := map[string]interface{}{"entered": true}
	if cutoff.Valid {
		resp["cutoff_lote"] = cutoff.String
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOperatorPrintInitial(w http.ResponseWriter, r *http.Request) {
	routeNorm := mux.Vars(r)["route"]
	operatorID := operatorFromRequest(r)
	if operatorID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "operator_id is required")
		return
	}
	active, ok := s.activeShiftOrError(w, r)
	if !ok {
		return
	}

	progress, err := s.queries().GetOperatorRouteProgress(r.Context(), active.ID, operatorID, routeNorm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if progress == nil {
		writeError(w, http.StatusConflict, "NO_ENTER", "operator has not entered this route yet")
		return
	}

	lines, err := s.printMgr.SelectOperatorInitial(r.Context(), active.ID, operatorID, routeNorm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if len(lines) == 0 {
		writeError(w, http.StatusConflict, "NOTHING_TO_PRINT", "no lines to print")
		return
	}

	s.createAndRespondPrintJob(w, r, db.PrintKindOperatorInitial, active.ID, routeNorm,
		sql.NullString{String: operatorID, Valid: true}, progress.CutoffLote, lines)
}

func (s *Server) handleOperatorPrintNew(w http.ResponseWriter, r *http.Request) {
	routeNorm := mux.Vars(r)["route"]
	operatorID := operatorFromRequest(r)
	if operatorID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "operator_id is required")
		return
	}
	active, ok := s.activeShiftOrError(w, r)
	if !ok {
		return
	}

	progress, err := s.queries().GetOperatorRouteProgress(r.Context(), active.ID, operatorID, routeNorm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if progress == nil {
		writeError(w, http.StatusConflict, "NO_ENTER", "operator has not entered this route yet")
		return
	}

	lines, err := s.printMgr.SelectOperatorNew(r.Context(), active.ID, operatorID, routeNorm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if len(lines) == 0 {
		writeError(w, http.StatusConflict, "NOTHING_TO_PRINT", "no new lines to print")
		return
	}

	s.createAndRespondPrintJob(w, r, db.PrintKindOperatorNew, active.ID, routeNorm,
		sql.NullString{String: operatorID, Valid: true}, sql.NullString{}, lines)
}

func (s *Server) handleCollectorPrintNew(w http.ResponseWriter, r *http.Request) {
	routeNorm := mux.Vars(r)["route"]
	active, ok := s.activeShiftOrError(w, r)
	if !ok {
		return
	}

	lines, err := s.printMgr.SelectCollectorNew(r.Context(), active.ID, routeNorm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if len(lines) == 0 {
		writeError(w, http.StatusConflict, "NOTHING_TO_PRINT", "no new lines to print")
		return
	}

	s.createAndRespondPrintJob(w, r, db.PrintKindCollectorNew, active.ID, routeNorm, sql.NullString{}, sql.NullString{}, lines)
}

// createAndRespondPrintJob writes the caller-supplied PDF bytes to
// PDFStorageDir/<ref>.pdf, invokes the print-job manager, and writes the
// {job_id, lines_count, pdf_url} response (§6).
func (s *Server) createAndRespondPrintJob(w http.ResponseWriter, r *http.Request, kind, shiftID, routeNorm string,
	operatorID, cutoff sql.NullString, lines []db.LoteLineRow) {

	pdfRef := uuid.NewString()
	pdfBytes, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "failed to read PDF body")
		return
	}
	if len(pdfBytes) > 0 {
		path := filepath.Join(s.cfg.PDFStorageDir, pdfRef+".pdf")
		if err := os.WriteFile(path, pdfBytes, 0o644); err != nil {
			if _, jobErr := s.printMgr.RecordFailedPrintJob(r.Context(), kind, operatorID, shiftID, routeNorm, err.Error()); jobErr != nil {
				log.Printf("ERROR: print: failed to record FAILED job: %v", jobErr)
			}
			writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to write PDF")
			return
		}
	}

	jobID, err := s.printMgr.CreatePrintJob(r.Context(), print.CreatePrintJobParams{
		Kind: kind, ActorUser: operatorID, ShiftID: shiftID, RouteNorm: routeNorm,
		Lines: lines, PDFRef: pdfRef, CutoffLote: cutoff, OperatorID: operatorID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID, "lines_count": len(lines), "pdf_url": "/pdf/" + pdfRef + ".pdf",
	})
}
