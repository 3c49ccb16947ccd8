package handlers

import (
	"net/http"
	"strconv"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// CountryHandler serves the reference country catalog.
type CountryHandler struct {
	Catalog CatalogService
}

type countriesResponse struct {
	Countries []models.Country `json:"countries"`
	Source    string           `json:"source"`
	Outdated  bool             `json:"outdated"`
}

// List handles GET /api/v1/countries. ?refresh=true bypasses a valid cache.
func (h CountryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	countries, src, err := h.Catalog.Load(ctx, force)
	if err != nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "country catalog unavailable")
		return
	}

	respondJSON(ctx, w, http.StatusOK, countriesResponse{
		Countries: countries,
		Source:    string(src),
		Outdated:  src.Outdated(),
	})
}

// Reset handles DELETE /api/v1/countries/cache.
func (h CountryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.ResetCache(r.Context()); err != nil {
		respondMessage(r.Context(), w, http.StatusInternalServerError, "reset country cache failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
