package httpapi

import (
	"net/http"
	"time"

	"taskforge.org/internal/audit"
	"taskforge.org/internal/tracker"
)

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.tracker.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var priority *tracker.TaskPriority
	if req.Priority != nil {
		parsed, err := tracker.ParseTaskPriority(*req.Priority)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		priority = &parsed
	}
	var due *time.Time
	if req.DueDate != nil {
		utc := req.DueDate.UTC()
		due = &utc
	}
	t, err := a.tracker.UpdateTask(r.Context(), actor, r.PathValue("id"), req.Title, req.Description, priority, due)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type assignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

func (a *API) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.tracker.AssignTask(r.Context(), actor, r.PathValue("id"), req.AssigneeID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.assigned", map[string]any{
		"task_id":  t.ID,
		"assignee": t.AssigneeID,
	})
	writeJSON(w, http.StatusOK, t)
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (a *API) handleTransitionTask(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := tracker.ParseTaskStatus(req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err := a.tracker.TransitionTask(r.Context(), actor, r.PathValue("id"), status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.transitioned", map[string]any{
		"task_id": t.ID,
		"status":  string(t.Status),
	})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleListComments(w http.ResponseWriter, r *http.Request) {
	list, err := a.tracker.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list})
}

type commentRequest struct {
	Content string `json:"content"`
}

func (a *API) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.tracker.CreateComment(r.Context(), actor, r.PathValue("id"), req.Content)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
