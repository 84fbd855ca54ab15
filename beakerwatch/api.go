package beakerwatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API exposes run records and run submission over HTTP.
type API struct {
	store    Store
	enqueuer *Enqueuer
}

// NewAPI builds the API. The enqueuer may be nil, in which case POST /runs
// responds 503.
func NewAPI(store Store, enqueuer *Enqueuer) *API {
	return &API{store: store, enqueuer: enqueuer}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/runs/{jobID}", a.getRun)
	r.Post("/runs", a.createRun)
	return r
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	rec, err := a.store.GetByJobID(r.Context(), jobID)
	if errors.Is(err, ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "no run for job "+jobID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) createRun(w http.ResponseWriter, r *http.Request) {
	if a.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "run queue not configured")
		return
	}
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid run request: "+err.Error())
		return
	}
	info, err := a.enqueuer.EnqueueRun(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID, "queue": info.Queue})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
