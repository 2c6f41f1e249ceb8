// Package auth verifies the HS256 bearer tokens issued at login and attaches
// the caller's identity to the request context.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/plateful/api/internal/platform/requestctx"
)

// Role constants used when checking authorisation boundaries.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const defaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the JWT payload carried by issued tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier turns a raw bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (requestctx.Identity, error)
}

// HS256Verifier verifies tokens signed with a shared secret.
type HS256Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewHS256Verifier constructs a verifier over the shared signing secret.
func NewHS256Verifier(secret string) (*HS256Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &HS256Verifier{secret: []byte(secret), ttl: defaultTokenTTL}, nil
}

// Verify parses and validates the token, returning the embedded identity.
func (v *HS256Verifier) Verify(token string) (requestctx.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return requestctx.Identity{}, ErrTokenExpired
	case err != nil:
		return requestctx.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !parsed.Valid:
		return requestctx.Identity{}, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return requestctx.Identity{}, fmt.Errorf("%w: subject is not a user id", ErrTokenInvalid)
	}

	role := normaliseRole(claims.Role)
	if role == "" {
		role = RoleUser
	}
	return requestctx.Identity{UserID: userID, Role: role}, nil
}

// Issue signs a token for the given identity, used by the login flow and tests.
func (v *HS256Verifier) Issue(identity requestctx.Identity, now time.Time) (string, error) {
	if identity.UserID <= 0 {
		return "", errors.New("auth: identity needs a user id")
	}
	claims := Claims{
		Role: normaliseRole(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
