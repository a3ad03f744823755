package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sheetsync/sheetsync/internal/server"
)

type contextKey string

// ContextKeySubject holds the token subject of an authenticated request.
const ContextKeySubject contextKey = "subject"

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator returns nil when secret is empty, which disables auth.
func NewAuthenticator(secret, issuer string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken parses and verifies a token, returning its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			server.WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authorization header required")
			return
		}

		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			server.WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			server.WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeySubject, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
