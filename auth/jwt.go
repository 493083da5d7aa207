// Package auth handles the identity boundary: parsing and minting the
// signed bearer tokens that carry an authenticated student ID and role.
// The booking core trusts the identity produced here and performs no
// authentication of its own; credential management lives elsewhere.
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/warp/mess-engine/mess"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity carried by a bearer token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the parsed, trusted identity handed to the core.
type Identity struct {
	StudentID string
	Role      mess.Role
}

// Tokens signs and parses bearer tokens with a shared HMAC secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Mint issues a token for a student. Used by tooling and tests; token
// issuance in production belongs to the identity provider.
func (t *Tokens) Mint(studentID string, role mess.Role) (string, error) {
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   studentID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns the identity it carries.
func (t *Tokens) Parse(tokenStr string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	role := mess.Role(claims.Role)
	if role != mess.RoleStudent && role != mess.RoleAdmin {
		return nil, ErrInvalidToken
	}

	return &Identity{StudentID: claims.Subject, Role: role}, nil
}
