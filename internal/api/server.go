package api

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/dacrisa/comandas-core/internal/batch"
	"github.com/dacrisa/comandas-core/internal/config"
	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/imapworker"
	"github.com/dacrisa/comandas-core/internal/print"
	"github.com/dacrisa/comandas-core/internal/ratelimit"
	"github.com/dacrisa/comandas-core/internal/shift"
)

// Server wires the HTTP surface onto the domain components (§6).
type Server struct {
	cfg      *config.Config
	database *sql.DB
	router   *mux.Router

	bus        *eventbus.Bus
	shiftMgr   *shift.Manager
	printMgr   *print.Manager
	batchProc  *batch.Processor
	imapWorker *imapworker.Worker
	forcePoll  *ratelimit.Limiter
}

func NewServer(cfg *config.Config, database *sql.DB, bus *eventbus.Bus, shiftMgr *shift.Manager,
	printMgr *print.Manager, batchProc *batch.Processor, worker *imapworker.Worker) *Server {

	s := &Server{
		cfg:        cfg,
		database:   database,
		router:     mux.NewRouter(),
		bus:        bus,
		shiftMgr:   shiftMgr,
		printMgr:   printMgr,
		batchProc:  batchProc,
		imapWorker: worker,
		forcePoll:  ratelimit.New(1/float64(cfg.ImapPollSeconds), 1),
	}
	s.setupRoutes()
	return s
}

// Router returns the CORS-wrapped handler ready for http.Server.
func (s *Server) Router() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-User-ID"},
		AllowCredentials: s.cfg.CORSAllowCredentials,
		MaxAge:           300,
	})
	return c.Handler(s.router)
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.actorMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/shifts/open", s.handleOpenShift).Methods("POST")
	api.HandleFunc("/shifts/{id}/close", s.handleCloseShift).Methods("POST")
	api.HandleFunc("/shifts/active", s.handleActiveShift).Methods("GET")

	api.HandleFunc("/routes", s.handleListRoutes).Methods("GET")
	api.HandleFunc("/routes/{route_id}/mark-collected", s.handleMarkCollected).Methods("POST")

	api.HandleFunc("/print/routes/{route}/operator/enter", s.handleOperatorEnter).Methods("POST")
	api.HandleFunc("/print/routes/{route}/operator/print-initial", s.handleOperatorPrintInitial).Methods("POST")
	api.HandleFunc("/print/routes/{route}/operator/print-new", s.handleOperatorPrintNew).Methods("POST")
	api.HandleFunc("/print/routes/{route}/collector/print-new", s.handleCollectorPrintNew).Methods("POST")

	api.HandleFunc("/events/stream", s.handleEventsStream).Methods("GET")
	api.HandleFunc("/events", s.handleEventsPage).Methods("GET")

	api.HandleFunc("/imap/status", s.handleImapStatus).Methods("GET")
	api.HandleFunc("/imap/force-poll", s.handleImapForcePoll).Methods("POST")

	api.HandleFunc("/catalogs/products", s.handleBulkInsertProducts).Methods("POST")
	api.HandleFunc("/catalogs/products/{version}/activate", s.handleActivateProductsCatalog).Methods("POST")
	api.HandleFunc("/catalogs/routes", s.handleBulkInsertRoutes).Methods("POST")
	api.HandleFunc("/catalogs/routes/{version}/activate", s.handleActivateRoutesCatalog).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// apiError is the JSON shape of §6's error contract.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

func (s *Server) queries() *db.Queries {
	return db.New(s.database)
}
