package handlers

import "net/http"

// HealthHandler responds with service health information.
type HealthHandler struct {
	Environment string
	Guest       bool
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	mode := "user"
	if h.Guest {
		mode = "guest"
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.Environment,
		"mode":        mode,
	})
}
