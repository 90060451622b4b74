// Package httpapi is the HTTP boundary: routing, authentication,
// request/response plumbing and the mapping from domain errors to status
// codes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"taskforge.org/internal/identity"
	"taskforge.org/internal/obs"
	"taskforge.org/internal/tracker"
)

// ReadyProbe reports storage readiness, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the identity and tracker services.
type API struct {
	mux        *http.ServeMux
	identity   *identity.Service
	tracker    *tracker.Service
	readyProbe ReadyProbe
	version    string
}

func New(ids *identity.Service, trk *tracker.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		identity:   ids,
		tracker:    trk,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("GET /v1/auth/me", a.handleMe)

	a.mux.HandleFunc("POST /v1/users", a.handleRegister)
	a.mux.HandleFunc("GET /v1/users/{id}", a.handleGetUser)
	a.mux.HandleFunc("PATCH /v1/users/{id}", a.handleUpdateProfile)
	a.mux.HandleFunc("PUT /v1/users/{id}/role", a.handleSetRole)
	a.mux.HandleFunc("POST /v1/users/{id}/deactivate", a.handleDeactivate)

	a.mux.HandleFunc("POST /v1/projects", a.handleCreateProject)
	a.mux.HandleFunc("GET /v1/projects", a.handleListProjects)
	a.mux.HandleFunc("GET /v1/projects/{id}", a.handleGetProject)
	a.mux.HandleFunc("PATCH /v1/projects/{id}", a.handleUpdateProject)
	a.mux.HandleFunc("POST /v1/projects/{id}/members", a.handleAddMember)
	a.mux.HandleFunc("POST /v1/projects/{id}/archive", a.handleArchiveProject)
	a.mux.HandleFunc("GET /v1/projects/{id}/stats", a.handleProjectStats)
	a.mux.HandleFunc("GET /v1/projects/{id}/tasks", a.handleListTasks)
	a.mux.HandleFunc("POST /v1/projects/{id}/tasks", a.handleCreateTask)

	a.mux.HandleFunc("GET /v1/tasks/{id}", a.handleGetTask)
	a.mux.HandleFunc("PATCH /v1/tasks/{id}", a.handleUpdateTask)
	a.mux.HandleFunc("POST /v1/tasks/{id}/assign", a.handleAssignTask)
	a.mux.HandleFunc("POST /v1/tasks/{id}/status", a.handleTransitionTask)
	a.mux.HandleFunc("GET /v1/tasks/{id}/comments", a.handleListComments)
	a.mux.HandleFunc("POST /v1/tasks/{id}/comments", a.handleCreateComment)

	a.mux.HandleFunc("PATCH /v1/comments/{id}", a.handleUpdateComment)
	a.mux.HandleFunc("DELETE /v1/comments/{id}", a.handleDeleteComment)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully assembled handler chain. Policy middleware
// (CORS, rate limiting, body caps) is layered on by the caller.
func (a *API) Handler() http.Handler {
	return obs.Instrument(RequestID(LoggingJSON(a.withAuth(a.mux))))
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "taskforge-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "taskforge-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
