package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proimagery/ferdi-app-sub000/internal/logging"
)

// CollectionHandler exposes one optimistic collection. Writes answer 202
// because the remote write completes in the background.
type CollectionHandler[T any] struct {
	Name  string
	Store Collection[T]
}

// Routes mounts list, create, update and delete under the current prefix.
func (h CollectionHandler[T]) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List handles GET on the collection.
func (h CollectionHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	items := h.Store.Items()
	if items == nil {
		items = []T{}
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"items": items})
}

// Create handles POST on the collection and returns the temporary id.
func (h CollectionHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var item T
	if err := decodeJSON(w, r, &item); err != nil {
		logging.FromContext(ctx).Warn("invalid create payload", "collection", h.Name, "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.Store.Create(ctx, item)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"id": id})
}

// Update handles PUT on a record. The path id wins over any id in the body.
func (h CollectionHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	index := h.Store.IndexOf(id)
	if index < 0 {
		respondMessage(ctx, w, http.StatusNotFound, h.Name+" record not found")
		return
	}

	var item T
	if err := decodeJSON(w, r, &item); err != nil {
		logging.FromContext(ctx).Warn("invalid update payload", "collection", h.Name, "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Store.Update(ctx, index, item); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"id": id})
}

// Delete handles DELETE on a record.
func (h CollectionHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	index := h.Store.IndexOf(id)
	if index < 0 {
		respondMessage(ctx, w, http.StatusNotFound, h.Name+" record not found")
		return
	}
	if err := h.Store.Delete(ctx, index); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
