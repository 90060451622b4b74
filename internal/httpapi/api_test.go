package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskforge.org/internal/cache"
	"taskforge.org/internal/identity"
	"taskforge.org/internal/tracker"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	shared := cache.New(256)
	idSvc := identity.NewService(identity.NewInMemory(),
		identity.WithTokenSecret("test-secret"),
		identity.WithIssuer("taskforge-test"),
		identity.WithCache(shared),
	)
	store := tracker.NewInMemory()
	trkSvc := tracker.NewService(store, store.Tasks(), store.Comments(),
		tracker.WithCache(shared),
		tracker.WithIdentityDirectory(idSvc),
	)
	return New(idSvc, trkSvc, ReadyProbe{}, "test").Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

// signup registers a user and returns their id and a bearer token.
func signup(t *testing.T, h http.Handler, username, role string) (string, string) {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/users", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "s3cret-pw",
		"role":     role,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, rr.Code, rr.Body.String())
	}
	userID, _ := decode(t, rr)["id"].(string)

	rr = do(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": "s3cret-pw",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, rr.Code, rr.Body.String())
	}
	token, _ := decode(t, rr)["token"].(string)
	if token == "" {
		t.Fatalf("no token for %s", username)
	}
	return userID, token
}

func TestLoginFlow(t *testing.T) {
	h := newTestAPI(t)
	_, token := signup(t, h, "alice", "developer")

	rr := do(t, h, http.MethodGet, "/v1/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: %d", rr.Code)
	}
	me := decode(t, rr)
	if me["username"] != "alice" {
		t.Fatalf("unexpected me: %v", me)
	}
	if _, leaked := me["password_hash"]; leaked {
		t.Fatal("password hash must never serialize")
	}

	// Wrong password and unknown user collapse to the same 401.
	for _, creds := range []map[string]any{
		{"username": "alice", "password": "wrong"},
		{"username": "nobody", "password": "wrong"},
	} {
		rr := do(t, h, http.MethodPost, "/v1/auth/login", "", creds)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if decode(t, rr)["error"] != "invalid credentials" {
			t.Fatalf("credential failures must not differentiate: %s", rr.Body.String())
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestAPI(t)

	rr := do(t, h, http.MethodGet, "/v1/projects", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/projects", "garbage-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rr.Code)
	}
	// Health and registration stay open.
	if rr := do(t, h, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
}

func TestProjectMembershipFlow(t *testing.T) {
	h := newTestAPI(t)
	_, alice := signup(t, h, "alice", "developer")
	bobID, bob := signup(t, h, "bob", "manager")

	rr := do(t, h, http.MethodPost, "/v1/projects", alice, map[string]any{"name": "P"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rr.Code, rr.Body.String())
	}
	projectID, _ := decode(t, rr)["id"].(string)

	// bob is outside the project: rename denied with the rule's reason.
	rr = do(t, h, http.MethodPatch, "/v1/projects/"+projectID, bob, map[string]any{"name": "X"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", rr.Code, rr.Body.String())
	}
	if decode(t, rr)["error"] == "" {
		t.Fatal("denial must carry a reason")
	}

	// bob cannot add himself; alice can.
	rr = do(t, h, http.MethodPost, "/v1/projects/"+projectID+"/members", bob, map[string]any{"user_id": bobID})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/v1/projects/"+projectID+"/members", alice, map[string]any{"user_id": bobID})
	if rr.Code != http.StatusOK {
		t.Fatalf("add member: %d %s", rr.Code, rr.Body.String())
	}

	// Membership unlocks the rename.
	rr = do(t, h, http.MethodPatch, "/v1/projects/"+projectID, bob, map[string]any{"name": "Renamed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("rename after membership: %d %s", rr.Code, rr.Body.String())
	}
}

func TestTaskAndCommentFlow(t *testing.T) {
	h := newTestAPI(t)
	aliceID, alice := signup(t, h, "alice", "developer")
	_, bob := signup(t, h, "bob", "manager")
	_, carol := signup(t, h, "carol", "developer")

	rr := do(t, h, http.MethodPost, "/v1/projects", alice, map[string]any{"name": "P"})
	projectID, _ := decode(t, rr)["id"].(string)

	rr = do(t, h, http.MethodPost, "/v1/projects/"+projectID+"/tasks", alice, map[string]any{
		"title":    "Ship it",
		"priority": "high",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", rr.Code, rr.Body.String())
	}
	taskID, _ := decode(t, rr)["id"].(string)

	// carol is an outsider: task creation in P is denied.
	rr = do(t, h, http.MethodPost, "/v1/projects/"+projectID+"/tasks", carol, map[string]any{"title": "Nope"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	// bob is a manager outside the project and may still assign.
	rr = do(t, h, http.MethodPost, "/v1/tasks/"+taskID+"/assign", bob, map[string]any{"assignee_id": aliceID})
	if rr.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/v1/tasks/"+taskID+"/status", alice, map[string]any{"status": "completed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("transition: %d %s", rr.Code, rr.Body.String())
	}
	task := decode(t, rr)
	if task["status"] != "completed" || task["completed_at"] == nil {
		t.Fatalf("unexpected task: %v", task)
	}

	// Comments: create, author-only edit, soft delete.
	rr = do(t, h, http.MethodPost, "/v1/tasks/"+taskID+"/comments", alice, map[string]any{"content": "done"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("comment: %d %s", rr.Code, rr.Body.String())
	}
	commentID, _ := decode(t, rr)["id"].(string)

	rr = do(t, h, http.MethodPatch, "/v1/comments/"+commentID, bob, map[string]any{"content": "hijack"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author edit, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodDelete, "/v1/comments/"+commentID, alice, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete comment: %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/tasks/"+taskID+"/comments", alice, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list comments: %d", rr.Code)
	}
	if comments, _ := decode(t, rr)["comments"].([]any); len(comments) != 0 {
		t.Fatalf("deleted comment still listed: %v", comments)
	}

	// Stats reflect the completed task.
	rr = do(t, h, http.MethodGet, "/v1/projects/"+projectID+"/stats", alice, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats: %d", rr.Code)
	}
	summary, _ := decode(t, rr)["summary"].(string)
	if summary != fmt.Sprintf("Total: %d, TODO: %d, In Progress: %d, Completed: %d", 1, 0, 0, 1) {
		t.Fatalf("summary = %q", summary)
	}
}

func TestDeactivationKillsToken(t *testing.T) {
	h := newTestAPI(t)
	aliceID, alice := signup(t, h, "alice", "developer")

	if rr := do(t, h, http.MethodGet, "/v1/auth/me", alice, nil); rr.Code != http.StatusOK {
		t.Fatalf("me before: %d", rr.Code)
	}
	rr := do(t, h, http.MethodPost, "/v1/users/"+aliceID+"/deactivate", alice, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate: %d %s", rr.Code, rr.Body.String())
	}
	// The unexpired signed token dies with the account.
	if rr := do(t, h, http.MethodGet, "/v1/auth/me", alice, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after deactivation, got %d", rr.Code)
	}
}

func TestLogoutInvalidatesLegacySession(t *testing.T) {
	shared := cache.New(256)
	idStore := identity.NewInMemory()
	idSvc := identity.NewService(idStore,
		identity.WithTokenSecret("test-secret"),
		identity.WithIssuer("taskforge-test"),
		identity.WithCache(shared),
	)
	store := tracker.NewInMemory()
	trkSvc := tracker.NewService(store, store.Tasks(), store.Comments(), tracker.WithCache(shared))
	h := New(idSvc, trkSvc, ReadyProbe{}, "test").Handler()

	_, _ = signup(t, h, "dave", "viewer")

	// Seed a legacy session so dave authenticates through the stateful
	// scheme.
	rec, err := idStore.FindByUsername(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	rec.SessionToken = "migrated"
	if err := idStore.Update(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	rr := do(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": "dave", "password": "s3cret-pw",
	})
	body := decode(t, rr)
	if body["scheme"] != "legacy" {
		t.Fatalf("expected legacy scheme, got %v", body["scheme"])
	}
	token, _ := body["token"].(string)

	if rr := do(t, h, http.MethodGet, "/v1/auth/me", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("me: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/auth/logout", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("logout: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/auth/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}
