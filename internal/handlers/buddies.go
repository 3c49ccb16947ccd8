package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// BuddyHandler exposes buddy projections and actions. A nil service means
// the process runs as a guest.
type BuddyHandler struct {
	Buddies       BuddyService
	Notifications NotificationLog
}

type highlightRequest struct {
	Highlighted bool `json:"highlighted"`
}

// Routes mounts the buddy endpoints under the current prefix.
func (h BuddyHandler) Routes(r chi.Router) {
	r.Get("/", h.State)
	r.Post("/refresh", h.Refresh)
	r.Post("/{counterpart}/request", h.action(BuddyService.Send))
	r.Post("/{counterpart}/accept", h.action(BuddyService.Accept))
	r.Post("/{counterpart}/reject", h.action(BuddyService.Reject))
	r.Post("/{counterpart}/cancel", h.action(BuddyService.Cancel))
	r.Delete("/{counterpart}", h.action(BuddyService.Remove))
	r.Put("/{counterpart}/highlight", h.Highlight)
}

// State handles GET /api/v1/buddies.
func (h BuddyHandler) State(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, h.Buddies.State())
}

// Refresh handles POST /api/v1/buddies/refresh.
func (h BuddyHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.Buddies.Refresh(r.Context()); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, h.Buddies.State())
}

// Highlight handles PUT /api/v1/buddies/{counterpart}/highlight.
func (h BuddyHandler) Highlight(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()

	var req highlightRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Buddies.SetHighlighted(ctx, chi.URLParam(r, "counterpart"), req.Highlighted); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, h.Buddies.State())
}

// NotificationList handles GET /api/v1/notifications.
func (h BuddyHandler) NotificationList(w http.ResponseWriter, r *http.Request) {
	notes := []string{}
	badge := 0
	if h.Notifications != nil {
		notes = append(notes, h.Notifications.Notifications()...)
		badge = h.Notifications.Badge()
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"notifications": notes, "badge": badge})
}

func (h BuddyHandler) action(op func(BuddyService, context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.available(w, r) {
			return
		}
		if err := op(h.Buddies, r.Context(), chi.URLParam(r, "counterpart")); err != nil {
			respondError(r.Context(), w, err)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, h.Buddies.State())
	}
}

func (h BuddyHandler) available(w http.ResponseWriter, r *http.Request) bool {
	if h.Buddies == nil {
		respondMessage(r.Context(), w, http.StatusForbidden, "sign in to manage buddies")
		return false
	}
	return true
}
