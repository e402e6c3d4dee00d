// Package middleware provides HTTP middleware for the storagebox API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/api/auth"
	"github.com/marmos91/storagebox/pkg/identity"
)

// DefaultCookieName is the cookie carrying the user token.
const DefaultCookieName = "user"

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the caller attached by UserAuth, or nil for
// anonymous requests.
func UserFromContext(ctx context.Context) *identity.UserContext {
	user, _ := ctx.Value(userContextKey).(*identity.UserContext)
	return user
}

// WithUser attaches a caller to ctx.
func WithUser(ctx context.Context, user *identity.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// extractBearerToken extracts the token from a Bearer Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

func extractToken(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return extractBearerToken(r)
}

// UserAuth resolves the caller from the user cookie or a Bearer token.
//
// A missing or invalid token leaves the request anonymous; invalid tokens
// are logged. Routes that need a caller add RequireUser after this.
func UserAuth(tokens *auth.TokenService, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractToken(r, cookieName)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				logger.WarnCtx(r.Context(), "Ignoring invalid user token", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			user := claims.UserContext()
			ctx := WithUser(r.Context(), user)
			if lc := logger.FromContext(ctx); lc != nil {
				ctx = logger.WithContext(ctx, lc.WithCaller(user.Identification.Issuer, user.Identification.Subject))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
// Must be used after UserAuth.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) == nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
