package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type ProfileHandler struct {
	profileStore *store.ProfileStore
	logger       *slog.Logger
}

func NewProfileHandler(ps *store.ProfileStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profileStore: ps, logger: logger}
}

func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileStore.List()
	if err != nil {
		h.logger.Error("list profiles", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list profiles"})
		return
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.profileStore.GetByUserID(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get own profile", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get profile"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request) (*model.Profile, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	p, err := h.profileStore.GetByID(id)
	if err != nil {
		h.logger.Error("get profile", "profile_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get profile"})
		return nil, false
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return nil, false
	}
	return p, true
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.getProfile(w, r); ok {
		writeJSON(w, http.StatusOK, p)
	}
}

type profileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Role        *string `json:"role"`
}

// Update handles PUT /api/profiles/{id}. Users edit their own display name
// and avatar; admins may edit anyone and change roles. Streak counters are
// never writable here.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getProfile(w, r)
	if !ok {
		return
	}

	isAdmin := auth.IsAdmin(r.Context())
	if !auth.CanActFor(r.Context(), existing.UserID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot edit another user's profile"})
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.Role != nil {
		if !isAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required to change roles"})
			return
		}
		if *req.Role != model.RoleAdmin && *req.Role != model.RoleMember {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be admin or member"})
			return
		}
	}

	displayName := existing.DisplayName
	if req.DisplayName != nil {
		displayName = strings.TrimSpace(*req.DisplayName)
		if displayName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "display_name cannot be empty"})
			return
		}
	}
	avatarURL := existing.AvatarURL
	if req.AvatarURL != nil {
		avatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	p, err := h.profileStore.UpdateDetails(existing.UserID, displayName, avatarURL)
	if err != nil {
		h.logger.Error("update profile", "profile_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}
	if req.Role != nil && *req.Role != p.Role {
		p, err = h.profileStore.SetRole(existing.UserID, *req.Role)
		if err != nil {
			h.logger.Error("set role", "profile_id", existing.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update role"})
			return
		}
		h.logger.Info("role changed", "user_id", existing.UserID, "role", *req.Role)
	}

	writeJSON(w, http.StatusOK, p)
}

// Leaderboard handles GET /api/leaderboard.
func (h *ProfileHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.profileStore.Leaderboard()
	if err != nil {
		h.logger.Error("leaderboard", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load leaderboard"})
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
