package identity

import (
	"context"
	"testing"
	"time"

	"taskforge.org/internal/cache"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *InMemory, *testClock) {
	t.Helper()
	store := NewInMemory()
	clock := newTestClock()
	base := []Option{
		WithTokenSecret("test-secret"),
		WithIssuer("taskforge-test"),
		WithClock(clock.Now),
	}
	svc := NewService(store, append(base, opts...)...)
	return svc, store, clock
}

func register(t *testing.T, svc *Service, username string, role Role) *Identity {
	t.Helper()
	id, err := svc.Register(context.Background(), username, username+"@example.com", "s3cret-pw", "", role)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return id
}

func TestAuthenticateIssuesSignedTokenByDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice", RoleDeveloper)

	out, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if out.Token.Scheme != SchemeSigned {
		t.Fatalf("expected signed scheme, got %s", out.Token.Scheme)
	}
	if out.Token.ExpiresAt.IsZero() {
		t.Fatal("signed token must carry an expiry")
	}
	if out.Identity.LastLoginAt.IsZero() {
		t.Fatal("last login must be stamped")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	svc, store, _ := newTestService(t)
	rec := register(t, svc, "alice", RoleDeveloper)

	if _, err := svc.Authenticate(context.Background(), "nobody", "pw"); err != ErrInvalidCredentials {
		t.Fatalf("unknown handle: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("bad password: expected ErrInvalidCredentials, got %v", err)
	}

	stored, _ := store.FindByID(context.Background(), rec.ID)
	stored.Active = false
	if err := store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw"); err != ErrInactiveAccount {
		t.Fatalf("inactive: expected ErrInactiveAccount, got %v", err)
	}
}

func TestSchemeStickiness(t *testing.T) {
	svc, store, _ := newTestService(t)
	rec := register(t, svc, "dave", RoleViewer)

	// No legacy token ever assigned: signed tokens.
	out, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}
	if out.Token.Scheme != SchemeSigned {
		t.Fatalf("expected signed, got %s", out.Token.Scheme)
	}

	// A migrated account carries a session token; from then on every
	// authentication renews through the legacy scheme.
	stored, _ := store.FindByID(context.Background(), rec.ID)
	stored.SessionToken = "migrated-session"
	if err := store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	first, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}
	if first.Token.Scheme != SchemeLegacy {
		t.Fatalf("expected legacy, got %s", first.Token.Scheme)
	}
	if first.Token.Value == "migrated-session" {
		t.Fatal("renewal must mint a fresh value")
	}

	second, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}
	if second.Token.Scheme != SchemeLegacy {
		t.Fatalf("stickiness broken: got %s", second.Token.Scheme)
	}

	// Renewal silently invalidated the first token.
	if _, ok := svc.ValidateToken(context.Background(), first.Token.Value); ok {
		t.Fatal("overwritten legacy token must not validate")
	}
	if _, ok := svc.ValidateToken(context.Background(), second.Token.Value); !ok {
		t.Fatal("current legacy token must validate")
	}
}

func TestValidateTokenIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice", RoleDeveloper)
	out, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	first, ok := svc.ValidateToken(context.Background(), out.Token.Value)
	if !ok {
		t.Fatal("expected valid token")
	}
	second, ok := svc.ValidateToken(context.Background(), out.Token.Value)
	if !ok {
		t.Fatal("expected valid token on repeat")
	}
	if first.ID != second.ID || first.Role != second.Role || first.Active != second.Active {
		t.Fatalf("validation mutated identity: %#v vs %#v", first, second)
	}
}

func TestDeactivationInvalidatesBothSchemes(t *testing.T) {
	svc, store, _ := newTestService(t, WithCache(cache.New(64)))

	signedUser := register(t, svc, "alice", RoleDeveloper)
	signedOut, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	legacyUser := register(t, svc, "dave", RoleViewer)
	stored, _ := store.FindByID(context.Background(), legacyUser.ID)
	stored.SessionToken = "seed"
	if err := store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}
	legacyOut, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	// Both validate while active (and get memoized).
	if _, ok := svc.ValidateToken(context.Background(), signedOut.Token.Value); !ok {
		t.Fatal("signed token should validate")
	}
	if _, ok := svc.ValidateToken(context.Background(), legacyOut.Token.Value); !ok {
		t.Fatal("legacy token should validate")
	}

	if err := svc.Deactivate(context.Background(), signedUser.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Deactivate(context.Background(), legacyUser.ID); err != nil {
		t.Fatal(err)
	}

	// The active flag is re-read from storage, not trusted from the token,
	// and the cache was evicted with the mutation.
	if _, ok := svc.ValidateToken(context.Background(), signedOut.Token.Value); ok {
		t.Fatal("signed token must miss after deactivation")
	}
	if _, ok := svc.ValidateToken(context.Background(), legacyOut.Token.Value); ok {
		t.Fatal("legacy token must miss after deactivation")
	}
}

func TestExpiryHoldsThroughMemoization(t *testing.T) {
	svc, store, clock := newTestService(t,
		WithCache(cache.New(64)),
		WithAccessTTL(time.Hour),
	)

	register(t, svc, "alice", RoleDeveloper)
	signedOut, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	legacyUser := register(t, svc, "dave", RoleViewer)
	stored, _ := store.FindByID(context.Background(), legacyUser.ID)
	stored.SessionToken = "seed"
	if err := store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}
	legacyOut, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	// First validation memoizes both tokens.
	if _, ok := svc.ValidateToken(context.Background(), signedOut.Token.Value); !ok {
		t.Fatal("signed token should validate before expiry")
	}
	if _, ok := svc.ValidateToken(context.Background(), legacyOut.Token.Value); !ok {
		t.Fatal("legacy token should validate")
	}

	clock.Advance(59 * time.Minute)
	if _, ok := svc.ValidateToken(context.Background(), signedOut.Token.Value); !ok {
		t.Fatal("signed token must stay valid strictly before expiry")
	}

	// The cached entry must not outlive the token's own expiry: no identity
	// write happened, so only the embedded boundary can reject it.
	clock.Advance(2 * time.Minute)
	if _, ok := svc.ValidateToken(context.Background(), signedOut.Token.Value); ok {
		t.Fatal("expired signed token must miss even while memoized")
	}
	// And stays rejected once the stale entry is gone.
	if _, ok := svc.ValidateToken(context.Background(), signedOut.Token.Value); ok {
		t.Fatal("expired signed token must keep missing")
	}

	// Legacy tokens carry no embedded expiry and are unaffected.
	if _, ok := svc.ValidateToken(context.Background(), legacyOut.Token.Value); !ok {
		t.Fatal("legacy token must survive the clock advance")
	}
}

func TestInvalidateLegacyToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	rec := register(t, svc, "dave", RoleViewer)
	stored, _ := store.FindByID(context.Background(), rec.ID)
	stored.SessionToken = "seed"
	if err := store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Invalidate(context.Background(), out.Token.Value); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.ValidateToken(context.Background(), out.Token.Value); ok {
		t.Fatal("invalidated token must always miss")
	}

	// Field cleared: the account reverts to the signed scheme.
	next, err := svc.Authenticate(context.Background(), "dave", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}
	if next.Token.Scheme != SchemeSigned {
		t.Fatalf("expected signed after session cleared, got %s", next.Token.Scheme)
	}
}

func TestRoleChangeIsReadFresh(t *testing.T) {
	svc, _, _ := newTestService(t, WithCache(cache.New(64)))
	rec := register(t, svc, "alice", RoleDeveloper)
	out, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	got, ok := svc.ValidateToken(context.Background(), out.Token.Value)
	if !ok || got.Role != RoleDeveloper {
		t.Fatalf("expected developer, got %v ok=%v", got, ok)
	}

	if err := svc.SetRole(context.Background(), rec.ID, RoleManager); err != nil {
		t.Fatal(err)
	}

	// Unexpired signed token, but the role snapshot in its payload is
	// ignored: the next validation sees the new role.
	got, ok = svc.ValidateToken(context.Background(), out.Token.Value)
	if !ok || got.Role != RoleManager {
		t.Fatalf("expected manager after role change, got %v ok=%v", got, ok)
	}
}

func TestRegisterUniqueness(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice", RoleDeveloper)

	if _, err := svc.Register(context.Background(), "alice", "other@example.com", "pw-123456", "", RoleViewer); err == nil {
		t.Fatal("duplicate username must be rejected")
	}
	if _, err := svc.Register(context.Background(), "alice2", "alice@example.com", "pw-123456", "", RoleViewer); err == nil {
		t.Fatal("duplicate email must be rejected")
	}
}

func TestHasLegacySessionPredicate(t *testing.T) {
	id := &Identity{}
	if id.HasLegacySession() {
		t.Fatal("empty session token must not read as legacy")
	}
	id.SessionToken = "tok"
	if !id.HasLegacySession() {
		t.Fatal("non-empty session token means legacy scheme")
	}
	var nilID *Identity
	if nilID.HasLegacySession() {
		t.Fatal("nil identity must not read as legacy")
	}
}
