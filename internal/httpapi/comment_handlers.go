package httpapi

import (
	"net/http"

	"taskforge.org/internal/audit"
)

func (a *API) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
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
	c, err := a.tracker.UpdateComment(r.Context(), actor, r.PathValue("id"), req.Content)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	id := r.PathValue("id")
	if err := a.tracker.DeleteComment(r.Context(), actor, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "comment.deleted", map[string]any{"comment_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
