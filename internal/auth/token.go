package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pkordes/travelogue/internal/domain"
)

// Claims are the JWT claims issued and accepted by the API. The subject is
// the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier issues and validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewVerifier returns a Verifier signing with secret. Tokens it issues are
// valid for ttl.
func NewVerifier(secret, issuer string, ttl time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth.NewVerifier: empty secret")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue mints a token for the given user.
func (v *Verifier) Issue(uid, email string) (string, error) {
	if uid == "" {
		return "", errors.New("auth.Verifier.Issue: empty uid")
	}
	now := v.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth.Verifier.Issue: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Every failure wraps
// domain.ErrUnauthenticated. The returned identity has IsAdmin unset; that
// comes from the whitelist.
func (v *Verifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("auth.Verifier.Verify: %w: %w", domain.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return Identity{}, fmt.Errorf("auth.Verifier.Verify: %w: missing subject", domain.ErrUnauthenticated)
	}
	return Identity{UID: claims.Subject, Email: claims.Email}, nil
}
