package signal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the signal read API.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/signals", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			days, _ := strconv.Atoi(req.URL.Query().Get("days"))
			if days <= 0 {
				days = 14
			}
			signals, err := store.ListRecent(req.Context(), days)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if signals == nil {
				signals = []WindowSignal{}
			}
			writeJSON(w, http.StatusOK, signals)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			sig, err := store.Get(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "signal not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, sig)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
