package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/proimagery/ferdi-app-sub000/internal/buddies"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/optimistic"
	"github.com/proimagery/ferdi-app-sub000/internal/providers"
	"github.com/proimagery/ferdi-app-sub000/internal/repositories"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// respondError maps domain errors onto HTTP statuses.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, optimistic.ErrIndexOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, optimistic.ErrPendingCreate),
		errors.Is(err, buddies.ErrInFlight),
		errors.Is(err, buddies.ErrExists),
		errors.Is(err, buddies.ErrWrongState),
		errors.Is(err, repositories.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, buddies.ErrInvalidCounterpart):
		status = http.StatusBadRequest
	case errors.Is(err, buddies.ErrGuest):
		status = http.StatusForbidden
	case errors.Is(err, optimistic.ErrClosed), errors.Is(err, buddies.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, providers.ErrUnauthorized):
		status = http.StatusBadGateway
	}
	respondMessage(ctx, w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
