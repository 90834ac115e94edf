package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/achievement"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/chore"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/recurrence"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type ChoreHandler struct {
	choreStore   *store.ChoreStore
	profileStore *store.ProfileStore
	evaluator    *achievement.Evaluator
	notifier     *push.Notifier
	hub          *websocket.Hub
	logger       *slog.Logger
	now          func() time.Time
}

func NewChoreHandler(cs *store.ChoreStore, ps *store.ProfileStore, ev *achievement.Evaluator, notifier *push.Notifier, hub *websocket.Hub, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{
		choreStore:   cs,
		profileStore: ps,
		evaluator:    ev,
		notifier:     notifier,
		hub:          hub,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *ChoreHandler) broadcast(action string, c *model.Chore) {
	if h.hub != nil {
		h.hub.Broadcast(websocket.ChoreEvent(action, c))
	}
}

type choreRequest struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	AssigneeID        *int64     `json:"assignee_id"`
	DueDate           *time.Time `json:"due_date"`
	CompletedAt       *time.Time `json:"completed_at"`
	Category          string     `json:"category"`
	Priority          string     `json:"priority"`
	RecurrencePattern string     `json:"recurrence_pattern"`
	BlocksOthers      bool       `json:"blocks_others"`
	Dependencies      []int64    `json:"dependencies"`
}

// choreResponse is a chore with its derived status and, when the save
// completed it, the achievements the completion unlocked.
type choreResponse struct {
	chore.ChoreWithStatus
	Profile  *model.Profile      `json:"profile,omitempty"`
	Unlocked []model.Achievement `json:"unlocked,omitempty"`
}

// badRequest is a validation failure reported to the client as 400.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// params validates req for the chore choreID (0 when creating).
func (h *ChoreHandler) params(req choreRequest, choreID int64) (store.ChoreParams, error) {
	p := store.ChoreParams{
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		AssigneeID:   req.AssigneeID,
		DueDate:      req.DueDate,
		CompletedAt:  req.CompletedAt,
		Category:     strings.TrimSpace(req.Category),
		Priority:     strings.ToLower(strings.TrimSpace(req.Priority)),
		BlocksOthers: req.BlocksOthers,
	}
	if p.Title == "" {
		return p, badRequest("title is required")
	}

	switch p.Priority {
	case "", model.PriorityLow, model.PriorityMedium, model.PriorityHigh:
	default:
		return p, badRequest("priority must be low, medium or high")
	}

	pattern, err := recurrence.Parse(req.RecurrencePattern)
	if err != nil {
		return p, badRequest("recurrence_pattern must be daily, weekly or monthly")
	}
	p.RecurrencePattern = string(pattern)

	if p.AssigneeID != nil {
		profile, err := h.profileStore.GetByUserID(*p.AssigneeID)
		if err != nil {
			return p, err
		}
		if profile == nil {
			return p, badRequest("assignee not found")
		}
	}

	seen := make(map[int64]bool)
	for _, id := range req.Dependencies {
		if seen[id] {
			continue
		}
		seen[id] = true
		if id != choreID {
			dep, err := h.choreStore.GetByID(id)
			if err != nil {
				return p, err
			}
			if dep == nil {
				return p, badRequest("dependency not found")
			}
		}
		p.Dependencies = append(p.Dependencies, id)
	}

	graph, err := h.choreStore.DependencyGraph()
	if err != nil {
		return p, err
	}
	if err := chore.CheckDependencies(graph, choreID, p.Dependencies); err != nil {
		return p, badRequest(err.Error())
	}
	return p, nil
}

// blockers returns the incomplete chores among deps.
func (h *ChoreHandler) blockers(deps []int64) ([]int64, error) {
	return chore.Blockers(deps, func(id int64) (bool, error) {
		dep, err := h.choreStore.GetByID(id)
		if err != nil {
			return false, err
		}
		return dep == nil || dep.CompletedAt != nil, nil
	})
}

// writeParamsError maps a params or blockers failure to a response.
func (h *ChoreHandler) writeParamsError(w http.ResponseWriter, err error) {
	var br badRequest
	if errors.As(err, &br) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": br.Error()})
		return
	}
	h.logger.Error("validate chore", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to validate chore"})
}

// checkCompletable writes 409 and returns false when completing a chore with
// these dependencies is not allowed yet.
func (h *ChoreHandler) checkCompletable(w http.ResponseWriter, deps []int64) bool {
	blocking, err := h.blockers(deps)
	if err != nil {
		h.logger.Error("check dependencies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check dependencies"})
		return false
	}
	if len(blocking) > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      chore.ErrBlocked.Error(),
			"blocked_by": blocking,
		})
		return false
	}
	return true
}

// afterSave runs the side effects of a save: notifications, streak and
// achievement evaluation when the save completed the chore, the next
// occurrence of a recurring chore, and the live update.
func (h *ChoreHandler) afterSave(ctx context.Context, action string, before, after *model.Chore) (*choreResponse, error) {
	caller := auth.UserID(ctx)
	resp := &choreResponse{
		ChoreWithStatus: chore.ChoreWithStatus{Chore: *after, Status: chore.ComputeStatus(*after, h.now())},
	}

	if chore.AssigneeChanged(before, after) && *after.AssigneeID != caller {
		h.notifier.ChoreAssigned(ctx, after)
	}

	if chore.CompletionTransition(before, after) == chore.Completed {
		action = "completed"
		if after.AssigneeID != nil {
			result, err := h.evaluator.Evaluate(achievement.Trigger{
				UserID:      *after.AssigneeID,
				ChoreID:     after.ID,
				CompletedAt: *after.CompletedAt,
				DueDate:     after.DueDate,
				Category:    after.Category,
			})
			if err != nil {
				h.broadcast(action, after)
				return nil, err
			}
			resp.Profile = result.Profile
			resp.Unlocked = result.Unlocked
			for _, a := range result.Unlocked {
				if h.hub != nil {
					h.hub.SendToUser(a.UserID, websocket.AchievementUnlocked(a))
				}
			}
		}
		h.notifier.ChoreCompleted(ctx, after, caller, h.displayName(caller))
		h.scheduleNext(after)
	}

	h.broadcast(action, after)
	return resp, nil
}

func (h *ChoreHandler) displayName(userID int64) string {
	p, err := h.profileStore.GetByUserID(userID)
	if err != nil || p == nil {
		return "Someone"
	}
	return p.DisplayName
}

// scheduleNext creates the following occurrence of a completed recurring
// chore. Chores without a due date do not recur.
func (h *ChoreHandler) scheduleNext(c *model.Chore) {
	pattern, err := recurrence.Parse(c.RecurrencePattern)
	if err != nil || !pattern.Recurs() || c.DueDate == nil {
		return
	}
	due := pattern.NextAfter(*c.DueDate, *c.CompletedAt)
	next, err := h.choreStore.Create(store.ChoreParams{
		Title:             c.Title,
		Description:       c.Description,
		AssigneeID:        c.AssigneeID,
		DueDate:           &due,
		Category:          c.Category,
		Priority:          c.Priority,
		RecurrencePattern: c.RecurrencePattern,
		BlocksOthers:      c.BlocksOthers,
	})
	if err != nil {
		h.logger.Error("create next occurrence", "chore_id", c.ID, "error", err)
		return
	}
	h.logger.Debug("scheduled next occurrence", "chore_id", c.ID, "next_id", next.ID, "due", due)
	h.broadcast("created", next)
}

func (h *ChoreHandler) writeSaveResult(w http.ResponseWriter, status int, resp *choreResponse, err error) {
	if err != nil {
		if errors.Is(err, achievement.ErrProfileMissing) {
			h.logger.Error("evaluate achievements: assignee has no profile", "error", err)
		} else {
			h.logger.Error("evaluate achievements", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "chore saved but achievement evaluation failed"})
		return
	}
	writeJSON(w, status, resp)
}

// Create handles POST /api/chores.
func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	p, err := h.params(req, 0)
	if err != nil {
		h.writeParamsError(w, err)
		return
	}
	if p.CompletedAt != nil && !h.checkCompletable(w, p.Dependencies) {
		return
	}

	c, err := h.choreStore.Create(p)
	if err != nil {
		h.logger.Error("create chore", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create chore"})
		return
	}

	resp, err := h.afterSave(r.Context(), "created", nil, c)
	h.writeSaveResult(w, http.StatusCreated, resp, err)
}

// List handles GET /api/chores. Supported filters: assignee_id, status,
// category, priority and search.
func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	assignee, err := parseOptionalID(r, "assignee_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignee_id"})
		return
	}

	var status chore.Status
	if raw := q.Get("status"); raw != "" {
		st, ok := chore.ParseStatus(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be pending, completed or overdue"})
			return
		}
		status = st
	}

	filter := model.ChoreFilter{
		AssigneeID: assignee,
		Category:   q.Get("category"),
		Priority:   q.Get("priority"),
		Search:     strings.TrimSpace(q.Get("search")),
	}
	if status != "" {
		completed := status == chore.StatusCompleted
		filter.Completed = &completed
	}

	chores, err := h.choreStore.List(filter)
	if err != nil {
		h.logger.Error("list chores", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list chores"})
		return
	}
	writeJSON(w, http.StatusOK, chore.WithStatus(chores, h.now(), status))
}

// getChore loads the chore named by the path, writing 400/404/500 itself.
func (h *ChoreHandler) getChore(w http.ResponseWriter, r *http.Request) (*model.Chore, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	c, err := h.choreStore.GetByID(id)
	if err != nil {
		h.logger.Error("get chore", "chore_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get chore"})
		return nil, false
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chore not found"})
		return nil, false
	}
	return c, true
}

// Get handles GET /api/chores/{id}.
func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.getChore(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chore.ChoreWithStatus{Chore: *c, Status: chore.ComputeStatus(*c, h.now())})
}

// Update handles PUT /api/chores/{id}. Setting completed_at on an incomplete
// chore counts as completing it; saving an already completed chore again
// does not.
func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getChore(w, r)
	if !ok {
		return
	}

	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	p, err := h.params(req, existing.ID)
	if err != nil {
		h.writeParamsError(w, err)
		return
	}
	if existing.CompletedAt == nil && p.CompletedAt != nil && !h.checkCompletable(w, p.Dependencies) {
		return
	}

	c, err := h.choreStore.Update(existing.ID, p)
	if err != nil {
		h.logger.Error("update chore", "chore_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update chore"})
		return
	}

	resp, err := h.afterSave(r.Context(), "updated", existing, c)
	h.writeSaveResult(w, http.StatusOK, resp, err)
}

// Delete handles DELETE /api/chores/{id}.
func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getChore(w, r)
	if !ok {
		return
	}

	if err := h.choreStore.Delete(existing.ID); err != nil {
		h.logger.Error("delete chore", "chore_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete chore"})
		return
	}

	h.broadcast("deleted", existing)
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /api/chores/{id}/complete. An unassigned chore is
// credited to the caller. Completing an already completed chore is a no-op.
func (h *ChoreHandler) Complete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getChore(w, r)
	if !ok {
		return
	}
	if existing.CompletedAt != nil {
		writeJSON(w, http.StatusOK, choreResponse{
			ChoreWithStatus: chore.ChoreWithStatus{Chore: *existing, Status: chore.StatusCompleted},
		})
		return
	}
	if !h.checkCompletable(w, existing.Dependencies) {
		return
	}

	p := store.ParamsFromChore(existing)
	now := h.now()
	p.CompletedAt = &now
	if p.AssigneeID == nil {
		caller := auth.UserID(r.Context())
		p.AssigneeID = &caller
	}

	c, err := h.choreStore.Update(existing.ID, p)
	if err != nil {
		h.logger.Error("complete chore", "chore_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to complete chore"})
		return
	}

	resp, err := h.afterSave(r.Context(), "completed", existing, c)
	h.writeSaveResult(w, http.StatusOK, resp, err)
}

// Claim handles POST /api/chores/{id}/claim, assigning an open chore to the
// caller.
func (h *ChoreHandler) Claim(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.getChore(w, r)
	if !ok {
		return
	}
	caller := auth.UserID(r.Context())

	if existing.CompletedAt != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "chore already completed"})
		return
	}
	if existing.AssigneeID != nil {
		if *existing.AssigneeID != caller {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "chore already assigned"})
			return
		}
		writeJSON(w, http.StatusOK, chore.ChoreWithStatus{Chore: *existing, Status: chore.ComputeStatus(*existing, h.now())})
		return
	}

	p := store.ParamsFromChore(existing)
	p.AssigneeID = &caller
	c, err := h.choreStore.Update(existing.ID, p)
	if err != nil {
		h.logger.Error("claim chore", "chore_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to claim chore"})
		return
	}

	resp, err := h.afterSave(r.Context(), "claimed", existing, c)
	h.writeSaveResult(w, http.StatusOK, resp, err)
}
