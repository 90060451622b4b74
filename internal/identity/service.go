package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskforge.org/internal/cache"
	"taskforge.org/internal/notify"
	"taskforge.org/internal/obs"
)

const defaultAccessTTL = 24 * time.Hour

// NamespaceIdentities is the cache namespace memoizing validated tokens.
// Keys are raw token values; any identity write evicts the whole namespace
// so a cached entry can never outlive a role change or deactivation.
const NamespaceIdentities = "identities"

// cachedValidation is a memoized ValidateToken hit. ExpiresAt carries the
// signed token's embedded expiry and is re-checked on every hit, so the
// hard expiry boundary holds even while the entry sits in the cache. Zero
// for legacy tokens, which have no embedded expiry.
type cachedValidation struct {
	identity  *Identity
	expiresAt time.Time
}

func (c cachedValidation) live(now time.Time) bool {
	return c.expiresAt.IsZero() || now.Before(c.expiresAt)
}

// Service is the authentication coordinator. It arbitrates between the
// signed and legacy schemes for issuance and validation and normalizes
// both into one outcome type.
type Service struct {
	store    Store
	cache    *cache.Cache
	notifier *notify.Notifier
	sig      signer
	now      func() time.Time
}

// Outcome is a successful authentication: the minted token plus the
// resolved identity.
type Outcome struct {
	Token    Token     `json:"token"`
	Identity *Identity `json:"identity"`
}

// Option configures Service behavior.
type Option func(*Service)

// WithTokenSecret enables the signed scheme using the provided HS256 secret.
func WithTokenSecret(secret string) Option {
	return func(s *Service) {
		if strings.TrimSpace(secret) != "" {
			s.sig.secret = []byte(secret)
		}
	}
}

// WithIssuer sets the issuer claim stamped into signed tokens.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.sig.issuer = strings.TrimSpace(issuer) }
}

// WithAccessTTL configures signed token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sig.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for expiry tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.sig.now = fn
		}
	}
}

// WithCache enables memoization of validated tokens.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier enables fire-and-forget account notifications.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService constructs the coordinator.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	s.sig = signer{ttl: defaultAccessTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new identity. Username and email uniqueness is
// enforced through store existence checks; the welcome notification is
// best-effort and never blocks creation.
func (s *Service) Register(ctx context.Context, username, email, password, fullName string, role Role) (*Identity, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}

	if taken, err := s.store.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: username %s", ErrAlreadyExists, username)
	}
	if taken, err := s.store.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: email %s", ErrAlreadyExists, email)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	id := &Identity{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, id); err != nil {
		return nil, err
	}
	s.notifier.Emit("account.welcome", id.Email, map[string]any{"username": id.Username})
	return id.Clone(), nil
}

// Authenticate verifies credentials and mints a token. Scheme selection is
// stateful and sticky: an identity holding a legacy session token keeps
// getting legacy tokens (session renewal) until the field is cleared;
// everyone else gets a signed token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Outcome, error) {
	username = strings.TrimSpace(username)
	id, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.AuthAttempt("invalid_credentials")
			return Outcome{}, ErrInvalidCredentials
		}
		obs.AuthAttempt("error")
		return Outcome{}, err
	}
	if !id.Active {
		obs.AuthAttempt("inactive_account")
		return Outcome{}, ErrInactiveAccount
	}
	if err := VerifyPassword(id.PasswordHash, password); err != nil {
		obs.AuthAttempt("invalid_credentials")
		return Outcome{}, ErrInvalidCredentials
	}

	id.LastLoginAt = s.now().UTC()
	id.UpdatedAt = id.LastLoginAt

	var tok Token
	if id.HasLegacySession() {
		// Renewal overwrites the stored value, silently invalidating the
		// previous token.
		id.SessionToken = mintSessionToken()
		tok = Token{Scheme: SchemeLegacy, Value: id.SessionToken}
	} else {
		tok, err = s.sig.issue(id)
		if err != nil {
			obs.AuthAttempt("error")
			return Outcome{}, err
		}
	}
	if err := s.store.Update(ctx, id); err != nil {
		obs.AuthAttempt("error")
		return Outcome{}, err
	}
	// The legacy reassignment above may have orphaned a memoized token.
	s.cache.EvictAll(NamespaceIdentities)

	obs.AuthAttempt("success")
	return Outcome{Token: tok, Identity: id.Clone()}, nil
}

// ValidateToken resolves a bearer credential to an identity. Validation
// order is fixed: legacy resolution first (storage lookup), then signed
// verification followed by a fresh subject lookup; role and active flag
// are never trusted from the token payload. All failure causes collapse to
// a miss; callers only see presence or absence.
func (s *Service) ValidateToken(ctx context.Context, value string) (*Identity, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, false
	}

	if v, ok := s.cache.Get(NamespaceIdentities, value); ok {
		if ent, ok := v.(cachedValidation); ok {
			if ent.live(s.now().UTC()) {
				return ent.identity.Clone(), true
			}
			// Memoized past its embedded expiry. Drop the entry and fall
			// through so the verifier rejects the token itself.
			s.cache.Evict(NamespaceIdentities, value)
		}
	}

	if id, ok := s.validateLegacy(ctx, value); ok {
		s.cache.Put(NamespaceIdentities, value, cachedValidation{identity: id.Clone()})
		return id, true
	}
	if id, exp, ok := s.validateSigned(ctx, value); ok {
		s.cache.Put(NamespaceIdentities, value, cachedValidation{identity: id.Clone(), expiresAt: exp})
		return id, true
	}
	return nil, false
}

func (s *Service) validateLegacy(ctx context.Context, value string) (*Identity, bool) {
	id, err := s.store.FindBySessionToken(ctx, value)
	if err != nil {
		return nil, false
	}
	if !id.Active {
		obs.TokenValidation(string(SchemeLegacy), "inactive")
		return nil, false
	}
	// Side effect inherited from the session system: validation refreshes
	// the last-authenticated timestamp.
	id.LastLoginAt = s.now().UTC()
	if err := s.store.Update(ctx, id); err != nil {
		obs.Warn("last login refresh failed", map[string]any{"error": err.Error()})
	}
	obs.TokenValidation(string(SchemeLegacy), "ok")
	return id.Clone(), true
}

// validateSigned also reports the token's embedded expiry so the memoized
// entry can enforce the same boundary the verifier just did.
func (s *Service) validateSigned(ctx context.Context, value string) (*Identity, time.Time, bool) {
	claims, err := s.sig.verify(value)
	if err != nil {
		obs.TokenValidation(string(SchemeSigned), "invalid")
		return nil, time.Time{}, false
	}
	id, err := s.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		obs.TokenValidation(string(SchemeSigned), "unknown_subject")
		return nil, time.Time{}, false
	}
	if !id.Active {
		obs.TokenValidation(string(SchemeSigned), "inactive")
		return nil, time.Time{}, false
	}
	obs.TokenValidation(string(SchemeSigned), "ok")
	return id.Clone(), claims.ExpiresAt.Time.UTC(), true
}

// Invalidate clears a legacy token so subsequent validations of that value
// always miss. Signed tokens have no server-side invalidation; they stay
// valid until natural expiry.
func (s *Service) Invalidate(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	id, err := s.store.FindBySessionToken(ctx, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cache.Evict(NamespaceIdentities, value)
			return nil
		}
		return err
	}
	id.SessionToken = ""
	id.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, id); err != nil {
		return err
	}
	s.cache.EvictAll(NamespaceIdentities)
	return nil
}

// Find returns an identity by id.
func (s *Service) Find(ctx context.Context, id string) (*Identity, error) {
	return s.store.FindByID(ctx, id)
}

// Deactivate soft-disables an account and clears its legacy session, which
// invalidates both token schemes on the next validation call.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	rec.Active = false
	rec.SessionToken = ""
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		return err
	}
	s.cache.EvictAll(NamespaceIdentities)
	s.notifier.Emit("account.deactivated", rec.Email, map[string]any{"username": rec.Username})
	return nil
}

// SetRole changes an identity's role. The change takes effect on the next
// token validation because roles are always re-read from storage.
func (s *Service) SetRole(ctx context.Context, id string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	rec.Role = role
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		return err
	}
	s.cache.EvictAll(NamespaceIdentities)
	return nil
}

// UpdateProfile changes email and/or full name. Email uniqueness is
// re-checked on change.
func (s *Service) UpdateProfile(ctx context.Context, id string, email, fullName *string) (*Identity, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if email != nil {
		next := strings.TrimSpace(strings.ToLower(*email))
		if next == "" || !strings.Contains(next, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		if next != rec.Email {
			if taken, err := s.store.ExistsByEmail(ctx, next); err != nil {
				return nil, err
			} else if taken {
				return nil, fmt.Errorf("%w: email %s", ErrAlreadyExists, next)
			}
			rec.Email = next
		}
	}
	if fullName != nil {
		rec.FullName = strings.TrimSpace(*fullName)
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.cache.EvictAll(NamespaceIdentities)
	return rec.Clone(), nil
}

// SupportsSignedTokens reports whether the signed scheme is configured.
func (s *Service) SupportsSignedTokens() bool {
	return s.sig.enabled()
}
