package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	notifier  *push.Notifier
	publicKey string
	logger    *slog.Logger
}

// NewPushHandler returns the push API. Without VAPID keys the notifier is
// disabled; subscriptions are still stored but nothing is sent.
func NewPushHandler(ps *store.PushStore, notifier *push.Notifier, publicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, notifier: notifier, publicKey: publicKey, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe. Re-subscribing an endpoint
// replaces its keys and owner.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint, p256dh, and auth are required"})
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint must be an https URL"})
		return
	}

	sub, err := h.pushStore.CreateSubscription(userID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	sub, err := h.pushStore.GetByID(id, userID)
	if err != nil {
		h.logger.Error("get push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get subscription"})
		return
	}
	if sub == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "subscription not found"})
		return
	}

	if err := h.pushStore.DeleteSubscription(id, userID); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

type preferenceItem struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// preferences lists every notification type with its effective setting.
// Types the user never touched are enabled.
func (h *PushHandler) preferences(userID int64) ([]preferenceItem, error) {
	stored, err := h.pushStore.GetPreferences(userID)
	if err != nil {
		return nil, err
	}
	enabled := make(map[string]bool, len(stored))
	for _, p := range stored {
		enabled[p.NotificationType] = p.Enabled
	}

	items := make([]preferenceItem, 0, len(model.NotificationTypes))
	for _, t := range model.NotificationTypes {
		on, ok := enabled[t]
		items = append(items, preferenceItem{Type: t, Enabled: on || !ok})
	}
	return items, nil
}

// GetPreferences handles GET /api/push/preferences
func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.preferences(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get push preferences", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get preferences"})
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /api/push/preferences
func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Preferences []preferenceItem `json:"preferences"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	for _, p := range req.Preferences {
		if !slices.Contains(model.NotificationTypes, p.Type) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown notification type: " + p.Type})
			return
		}
	}

	for _, p := range req.Preferences {
		if err := h.pushStore.SetPreference(userID, p.Type, p.Enabled); err != nil {
			h.logger.Error("set push preference", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update preferences"})
			return
		}
	}

	h.GetPreferences(w, r)
}

// TestNotification handles POST /api/push/test. It bypasses preferences.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if !h.notifier.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return
	}

	sent := h.notifier.Deliver(r.Context(), auth.UserID(r.Context()), push.Payload{
		Title: "Test Notification",
		Body:  "Push notifications are working!",
		URL:   "/settings",
		Tag:   "test",
	})
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
