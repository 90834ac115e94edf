package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/achievement"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type AchievementHandler struct {
	achievementStore *store.AchievementStore
	profileStore     *store.ProfileStore
	evaluator        *achievement.Evaluator
	logger           *slog.Logger
	now              func() time.Time
}

func NewAchievementHandler(as *store.AchievementStore, ps *store.ProfileStore, ev *achievement.Evaluator, logger *slog.Logger) *AchievementHandler {
	return &AchievementHandler{
		achievementStore: as,
		profileStore:     ps,
		evaluator:        ev,
		logger:           logger,
		now:              time.Now,
	}
}

// List handles GET /api/achievements, optionally filtered by user_id.
func (h *AchievementHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := parseOptionalID(r, "user_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}

	var achievements []model.Achievement
	if userID != nil {
		achievements, err = h.achievementStore.ListByUser(*userID)
	} else {
		achievements, err = h.achievementStore.List()
	}
	if err != nil {
		h.logger.Error("list achievements", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list achievements"})
		return
	}
	if achievements == nil {
		achievements = []model.Achievement{}
	}
	writeJSON(w, http.StatusOK, achievements)
}

// Catalog handles GET /api/achievements/catalog: every rule a user can unlock.
func (h *AchievementHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.evaluator.Rules())
}

func (h *AchievementHandler) getAchievement(w http.ResponseWriter, r *http.Request) (*model.Achievement, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	a, err := h.achievementStore.GetByID(id)
	if err != nil {
		h.logger.Error("get achievement", "achievement_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get achievement"})
		return nil, false
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "achievement not found"})
		return nil, false
	}
	return a, true
}

func (h *AchievementHandler) Get(w http.ResponseWriter, r *http.Request) {
	if a, ok := h.getAchievement(w, r); ok {
		writeJSON(w, http.StatusOK, a)
	}
}

type achievementRequest struct {
	UserID      int64        `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Category    string       `json:"category"`
	Rarity      model.Rarity `json:"rarity"`
	Points      int          `json:"points"`
	Requirement int          `json:"requirement"`
}

// Create handles POST /api/achievements (admin). The achievement starts
// locked; progress updates unlock it.
func (h *AchievementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req achievementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	if !model.ValidAchievementCategory(req.Category) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown category"})
		return
	}
	if req.Requirement < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requirement must be at least 1"})
		return
	}
	if req.Points < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "points cannot be negative"})
		return
	}

	profile, err := h.profileStore.GetByUserID(req.UserID)
	if err != nil {
		h.logger.Error("check achievement owner", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if profile == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user not found"})
		return
	}

	a, err := h.achievementStore.Create(model.Achievement{
		UserID:      req.UserID,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Icon:        req.Icon,
		Category:    req.Category,
		Rarity:      req.Rarity,
		Points:      req.Points,
		Requirement: req.Requirement,
	})
	if err != nil {
		h.logger.Error("create achievement", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create achievement"})
		return
	}
	if a == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user already has an achievement with that title"})
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateProgress handles PUT /api/achievements/{id}/progress (admin).
// Progress only moves forward and a completed achievement stays completed.
func (h *AchievementHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getAchievement(w, r)
	if !ok {
		return
	}

	var req struct {
		Progress int `json:"progress"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Progress < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "progress cannot be negative"})
		return
	}

	a, err := h.achievementStore.AdvanceProgress(existing.ID, req.Progress, h.now())
	if err != nil {
		h.logger.Error("update achievement progress", "achievement_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update progress"})
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "achievement not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Delete handles DELETE /api/achievements/{id} (admin).
func (h *AchievementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getAchievement(w, r)
	if !ok {
		return
	}
	if err := h.achievementStore.Delete(existing.ID); err != nil {
		h.logger.Error("delete achievement", "achievement_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete achievement"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
