package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// SubjectKey holds the token subject in the request context.
const SubjectKey contextKey = "subject"

// Verifier checks HS256 bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for secret.
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret cannot be empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses token and returns its subject.
func (v *Verifier) Verify(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("token cannot be empty")
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// Sign issues a token for subject. Used by operators and tests.
func (v *Verifier) Sign(claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// requireAuth rejects requests without a valid bearer token. The health
// endpoint is exempt. Websocket clients may pass the token as ?token=.
func (v *Verifier) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
			return
		}
		sub, err := v.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
		return "", errors.New("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	return strings.TrimSpace(token), nil
}
