package httpapi

import (
	"net/http"
	"strings"
	"time"

	"taskforge.org/internal/audit"
	"taskforge.org/internal/identity"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string             `json:"token"`
	Scheme    string             `json:"scheme"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	User      *identity.Identity `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	out, err := a.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := loginResponse{
		Token:  out.Token.Value,
		Scheme: string(out.Token.Scheme),
		User:   out.Identity,
	}
	if !out.Token.ExpiresAt.IsZero() {
		exp := out.Token.ExpiresAt
		resp.ExpiresAt = &exp
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username": out.Identity.Username,
		"scheme":   string(out.Token.Scheme),
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout invalidates the presented credential. For signed tokens
// this is a no-op on the server; legacy sessions are cleared.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.identity.Invalidate(r.Context(), token); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, id)
}
