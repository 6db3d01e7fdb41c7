// Package auth verifies the staff tokens that allow changing enrollments.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeEnrollmentsWrite allows signing participants up and removing them.
const ScopeEnrollmentsWrite = "enrollments:write"

var (
	// ErrMissingToken is returned when no bearer token accompanies a request.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps signature, expiry and issuer failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// staffClaims carries space separated scopes next to the registered claims.
type staffClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens issued for one secret and, optionally, one issuer.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier builds a Verifier. An empty issuer accepts tokens from any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}
}

// Verify parses raw and returns the staff member it was issued to.
func (v *Verifier) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	var claims staffClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.key); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return Principal{
		Subject:   claims.Subject,
		Scopes:    strings.Fields(claims.Scope),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Issue signs a token for subject. Used by tests and local tooling.
func (v *Verifier) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := staffClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) key(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}
