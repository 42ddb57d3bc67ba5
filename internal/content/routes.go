package content

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the content read API.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/content", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			status := Status(req.URL.Query().Get("status"))
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
			if limit <= 0 || limit > 200 {
				limit = 50
			}
			items, err := store.List(req.Context(), status, limit, offset)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if items == nil {
				items = []Item{}
			}
			writeJSON(w, http.StatusOK, items)
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			counts, err := store.CountByStatus(req.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, counts)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			item, err := store.Get(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "content item not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, item)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
