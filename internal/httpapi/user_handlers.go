package httpapi

import (
	"net/http"

	"taskforge.org/internal/audit"
	"taskforge.org/internal/identity"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := identity.RoleDeveloper
	if req.Role != "" {
		parsed, err := identity.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role = parsed
	}
	rec, err := a.identity.Register(r.Context(), req.Username, req.Email, req.Password, req.FullName, role)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"user_id":  rec.ID,
		"username": rec.Username,
	})
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	rec, err := a.identity.Find(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type profileRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

// handleUpdateProfile lets a user edit their own email and display name.
// Admins may edit anyone.
func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	target := r.PathValue("id")
	if actor.ID != target && actor.Role != identity.RoleAdmin {
		audit.Denied(r.Context(), r.Method, r.URL.Path, "profile edits are self-or-admin")
		writeError(w, r, http.StatusForbidden, "profile edits are self-or-admin")
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.identity.UpdateProfile(r.Context(), target, req.Email, req.FullName)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type roleRequest struct {
	Role string `json:"role"`
}

// handleSetRole is admin-only.
func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if actor.Role != identity.RoleAdmin {
		audit.Denied(r.Context(), r.Method, r.URL.Path, "role changes are admin-only")
		writeError(w, r, http.StatusForbidden, "role changes are admin-only")
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := r.PathValue("id")
	if err := a.identity.SetRole(r.Context(), target, role); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role_changed", map[string]any{
		"target": target,
		"role":   string(role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

// handleDeactivate disables an account and kills its credentials. Self
// service or admin.
func (a *API) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	actor, _, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	target := r.PathValue("id")
	if actor.ID != target && actor.Role != identity.RoleAdmin {
		audit.Denied(r.Context(), r.Method, r.URL.Path, "deactivation is self-or-admin")
		writeError(w, r, http.StatusForbidden, "deactivation is self-or-admin")
		return
	}
	if err := a.identity.Deactivate(r.Context(), target); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{"target": target})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}
