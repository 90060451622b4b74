package identity

import (
	"context"
	"testing"
	"time"
)

func TestSignedTokenExpiryBoundary(t *testing.T) {
	svc, _, clock := newTestService(t, WithAccessTTL(30*time.Minute))
	register(t, svc, "alice", RoleDeveloper)

	out, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}
	exp := out.Token.ExpiresAt

	// Any instant strictly before expiry validates.
	clock.Advance(29*time.Minute + 59*time.Second)
	if _, ok := svc.ValidateToken(context.Background(), out.Token.Value); !ok {
		t.Fatal("token must validate strictly before expiry")
	}

	// At the expiry instant and after it the token is rejected; the
	// boundary is consistent in both directions.
	clock.now = exp
	if _, ok := svc.ValidateToken(context.Background(), out.Token.Value); ok {
		t.Fatal("token must not validate at the expiry instant")
	}
	clock.Advance(time.Second)
	if _, ok := svc.ValidateToken(context.Background(), out.Token.Value); ok {
		t.Fatal("token must not validate after expiry")
	}
}

func TestSignedTokenRejectsTampering(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice", RoleDeveloper)
	out, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := svc.ValidateToken(context.Background(), out.Token.Value+"x"); ok {
		t.Fatal("tampered signature must be rejected")
	}
	if _, ok := svc.ValidateToken(context.Background(), "not-a-jwt"); ok {
		t.Fatal("malformed token must be rejected")
	}
	if _, ok := svc.ValidateToken(context.Background(), ""); ok {
		t.Fatal("empty token must be rejected")
	}
}

func TestSignedTokenFromOtherSecretRejected(t *testing.T) {
	svcA, _, _ := newTestService(t)
	register(t, svcA, "alice", RoleDeveloper)
	out, err := svcA.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	storeB := NewInMemory()
	svcB := NewService(storeB, WithTokenSecret("different-secret"), WithIssuer("taskforge-test"))
	if _, err := svcB.Register(context.Background(), "alice", "alice@example.com", "s3cret-pw", "", RoleDeveloper); err != nil {
		t.Fatal(err)
	}
	if _, ok := svcB.ValidateToken(context.Background(), out.Token.Value); ok {
		t.Fatal("token signed with a foreign secret must be rejected")
	}
}

func TestValidationResolvesSubjectFreshFromStore(t *testing.T) {
	svc, store, _ := newTestService(t)
	rec := register(t, svc, "alice", RoleDeveloper)
	out, err := svc.Authenticate(context.Background(), "alice", "s3cret-pw")
	if err != nil {
		t.Fatal(err)
	}

	// The signed payload carries a role snapshot; the store is the truth.
	stored, _ := store.FindByID(context.Background(), rec.ID)
	stored.Role = RoleAdmin
	if err := store.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	got, ok := svc.ValidateToken(context.Background(), out.Token.Value)
	if !ok {
		t.Fatal("expected valid token")
	}
	if got.Role != RoleAdmin {
		t.Fatalf("role must come from storage, got %s", got.Role)
	}
}

func TestParseRole(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Role
	}{
		{"admin", RoleAdmin},
		{" Manager ", RoleManager},
		{"DEVELOPER", RoleDeveloper},
		{"viewer", RoleViewer},
	} {
		got, err := ParseRole(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("ParseRole(%q) = %v, %v", tc.in, got, err)
		}
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("unknown role must be rejected")
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleManager) || !RoleManager.AtLeast(RoleDeveloper) || !RoleDeveloper.AtLeast(RoleViewer) {
		t.Fatal("role ordering broken")
	}
	if RoleViewer.AtLeast(RoleDeveloper) {
		t.Fatal("viewer must not outrank developer")
	}
}
