package source

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts source endpoints under /api/sources.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/sources", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Post("/", handleCreate(store))
		r.Get("/{id}", handleGet(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			SourceType: Type(q.Get("type")),
			ActiveOnly: q.Get("active") == "true",
		}
		sources, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if sources == nil {
			sources = []Source{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources, "total": len(sources)})
	}
}

func handleCreate(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var src Source
		if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if src.Name == "" || src.URL == "" {
			http.Error(w, "name and url are required", http.StatusBadRequest)
			return
		}
		if !ValidType(src.SourceType) {
			http.Error(w, "invalid source_type", http.StatusBadRequest)
			return
		}
		src.IsActive = true
		if err := store.Create(r.Context(), &src); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, src)
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "source not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
