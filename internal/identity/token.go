package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scheme tags which credential scheme produced a token.
type Scheme string

const (
	// SchemeSigned tokens are self-verifying JWTs; nothing is persisted.
	SchemeSigned Scheme = "signed"
	// SchemeLegacy tokens are opaque random strings persisted on the
	// identity record and resolved by storage lookup.
	SchemeLegacy Scheme = "legacy"
)

// Token is the credential handed to clients: a tagged union of the two
// variants. ExpiresAt is zero for legacy tokens, which have no embedded
// expiry and stay valid until cleared or the account is deactivated.
type Token struct {
	Scheme    Scheme    `json:"scheme"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Claims is the claim set embedded in signed tokens. The role is a snapshot
// taken at issuance; validation always re-reads it from storage.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// signer issues and verifies the signed variant using HS256.
type signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func (s *signer) enabled() bool { return len(s.secret) > 0 }

func (s *signer) issue(id *Identity) (Token, error) {
	if !s.enabled() {
		return Token{}, errors.New("identity: signing secret is not configured")
	}
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Scheme: SchemeSigned, Value: signed, ExpiresAt: exp}, nil
}

// verify checks signature and expiry against the injected clock. A token is
// valid strictly before its expiry instant and invalid from that instant on.
func (s *signer) verify(value string) (*Claims, error) {
	value = strings.TrimSpace(value)
	if value == "" || !s.enabled() {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// mintSessionToken produces the opaque value persisted for the legacy
// scheme. Reassignment overwrites the previous value, silently invalidating
// it: an identity holds at most one live legacy token.
func mintSessionToken() string {
	return uuid.NewString()
}
