package httpapi

import (
	"net/http"
	"time"

	"taskforge.org/internal/audit"
	"taskforge.org/internal/tracker"
)

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// projectView is the wire shape of a project; the member set is flattened
// into a list.
type projectView struct {
	*tracker.Project
	Members []string `json:"members"`
}

func viewProject(p *tracker.Project) projectView {
	return projectView{Project: p, Members: p.MemberIDs()}
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name, desc := "", ""
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		desc = *req.Description
	}
	p, err := a.tracker.CreateProject(r.Context(), actor, name, desc)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.created", map[string]any{"project_id": p.ID})
	writeJSON(w, http.StatusCreated, viewProject(p))
}

func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	list, err := a.tracker.ListProjects(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]projectView, 0, len(list))
	for _, p := range list {
		views = append(views, viewProject(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": views})
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := a.tracker.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProject(p))
}

func (a *API) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.tracker.UpdateProject(r.Context(), actor, r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProject(p))
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.tracker.AddMember(r.Context(), actor, r.PathValue("id"), req.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.member_added", map[string]any{
		"project_id": p.ID,
		"user_id":    req.UserID,
	})
	writeJSON(w, http.StatusOK, viewProject(p))
}

func (a *API) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	p, err := a.tracker.ArchiveProject(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.archived", map[string]any{"project_id": p.ID})
	writeJSON(w, http.StatusOK, viewProject(p))
}

func (a *API) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.tracker.ProjectStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   st,
		"summary": st.Summary(),
	})
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := a.tracker.GetProject(r.Context(), projectID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := a.tracker.ListTasks(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	priority := tracker.TaskPriority("")
	if req.Priority != "" {
		priority, err = tracker.ParseTaskPriority(req.Priority)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	var due time.Time
	if req.DueDate != nil {
		due = req.DueDate.UTC()
	}
	t, err := a.tracker.CreateTask(r.Context(), actor, r.PathValue("id"), req.Title, req.Description, priority, due)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.created", map[string]any{
		"task_id":    t.ID,
		"project_id": t.ProjectID,
	})
	writeJSON(w, http.StatusCreated, t)
}
