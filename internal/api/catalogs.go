package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/normalize"
)

type productItem struct {
	Name   string `json:"name"`
	Family int    `json:"family"`
}

type bulkInsertProductsRequest struct {
	Version int           `json:"version"`
	Items   []productItem `json:"items"`
}

// handleBulkInsertProducts implements POST /api/catalogs/products (§2.P):
// loads one immutable, inactive catalog version. Names are normalized the
// same way incoming order lines are, so matching against this catalog later
// is consistent (§4.D/§4.E).
func (s *Server) handleBulkInsertProducts(w http.ResponseWriter, r *http.Request) {
	var req bulkInsertProductsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "invalid request body")
		return
	}
	if req.Version <= 0 || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "version and items are required")
		return
	}

	err := db.RunInTx(r.Context(), s.database, func(q *db.Queries) error {
		if err := q.CreateProductsCatalogVersion(r.Context(), req.Version); err != nil {
			return err
		}
		for _, item := range req.Items {
			norm := normalize.Norm(item.Name)
			if norm == "" {
				continue
			}
			if err := q.InsertProduct(r.Context(), uuid.NewString(), req.Version, norm, item.Family); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"version": req.Version, "items_count": len(req.Items)})
}

// handleActivateProductsCatalog implements POST
// /api/catalogs/products/{version}/activate.
func (s *Server) handleActivateProductsCatalog(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "version must be an integer")
		return
	}

	now := time.Now().UTC()
	var activatedEnv eventbus.Envelope
	err = db.RunInTx(r.Context(), s.database, func(q *db.Queries) error {
		if err := q.ActivateProductsCatalog(r.Context(), version, now); err != nil {
			return err
		}
		actor := actorFromContext(r.Context())
		var err error
		activatedEnv, err = s.bus.PublishPersistOnly(r.Context(), q, actor, eventbus.TypeProductsActivated, eventbus.EntityCatalog,
			strconv.Itoa(version), map[string]interface{}{"version": version, "activated_at": now})
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	s.bus.FanOut(activatedEnv)

	writeJSON(w, http.StatusOK, map[string]interface{}{"version": version, "active": true})
}

type routeItem struct {
	Name string `json:"name"`
}

type bulkInsertRoutesRequest struct {
	Version int         `json:"version"`
	Items   []routeItem `json:"items"`
}

// handleBulkInsertRoutes implements POST /api/catalogs/routes (§2.P).
func (s *Server) handleBulkInsertRoutes(w http.ResponseWriter, r *http.Request) {
	var req bulkInsertRoutesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "invalid request body")
		return
	}
	if req.Version <= 0 || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "version and items are required")
		return
	}

	err := db.RunInTx(r.Context(), s.database, func(q *db.Queries) error {
		if err := q.CreateRoutesCatalogVersion(r.Context(), req.Version); err != nil {
			return err
		}
		for _, item := range req.Items {
			norm := normalize.Norm(item.Name)
			if norm == "" {
				continue
			}
			if err := q.InsertRoute(r.Context(), uuid.NewString(), req.Version, norm); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"version": req.Version, "items_count": len(req.Items)})
}

// handleActivateRoutesCatalog implements POST
// /api/catalogs/routes/{version}/activate.
func (s *Server) handleActivateRoutesCatalog(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_BLOCKED", "version must be an integer")
		return
	}

	now := time.Now().UTC()
	var activatedEnv eventbus.Envelope
	err = db.RunInTx(r.Context(), s.database, func(q *db.Queries) error {
		if err := q.ActivateRoutesCatalog(r.Context(), version, now); err != nil {
			return err
		}
		actor := actorFromContext(r.Context())
		var err error
		activatedEnv, err = s.bus.PublishPersistOnly(r.Context(), q, actor, eventbus.TypeRoutesActivated, eventbus.EntityCatalog,
			strconv.Itoa(version), map[string]interface{}{"version": version, "activated_at": now})
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	s.bus.FanOut(activatedEnv)

	writeJSON(w, http.StatusOK, map[string]interface{}{"version": version, "active": true})
}
