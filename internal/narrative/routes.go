package narrative

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the narrative read API.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/narratives", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := ListFilter{
				ActiveOnly: q.Get("all") != "true",
				Tag:        q.Get("tag"),
			}
			filter.MinVelocity, _ = strconv.ParseFloat(q.Get("min_velocity"), 64)
			filter.Limit, _ = strconv.Atoi(q.Get("limit"))
			if filter.Limit <= 0 || filter.Limit > 200 {
				filter.Limit = 50
			}
			filter.Offset, _ = strconv.Atoi(q.Get("offset"))

			narratives, err := store.List(req.Context(), filter)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if narratives == nil {
				narratives = []Narrative{}
			}
			writeJSON(w, http.StatusOK, narratives)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			detail, err := store.Get(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "narrative not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
