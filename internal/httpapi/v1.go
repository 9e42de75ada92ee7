package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/cmdsched/internal/scheduler"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type cancelResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// v1Router returns the chi.Router for API v1.
func v1Router(table Table) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/commands", listCommands(table))
	r.Post("/commands/{id}/cancel", cancelCommand(table))

	return r
}

// listCommands handles GET /commands. Before the first tick it returns an
// empty snapshot at tick 0.
func listCommands(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := table.Latest()
		if !ok || snap.Commands == nil {
			snap.Commands = []scheduler.CommandInfo{}
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// cancelCommand handles POST /commands/{id}/cancel.
func cancelCommand(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "command id must be a positive integer"})
			return
		}
		if !table.RequestCancel(id) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no running command with id " + strconv.FormatInt(id, 10)})
			return
		}
		writeJSON(w, http.StatusAccepted, cancelResponse{ID: id, Status: "queued"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
