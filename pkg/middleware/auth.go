package middleware

import (
	"context"
	"net/http"
	"strings"

	"civic-complaints-portal/pkg/response"
	"civic-complaints-portal/pkg/token"
)

type contextKey string

const UserContextKey contextKey = "user"

// Authenticator is the single entry point for request authentication.
// Handlers never parse tokens themselves; they read the validated
// claims from the request context.
type Authenticator struct {
	tokens     *token.Service
	cookieName string
}

func NewAuthenticator(tokens *token.Service, cookieName string) *Authenticator {
	return &Authenticator{tokens: tokens, cookieName: cookieName}
}

// extractToken supports both transports: the Authorization Bearer
// header (citizen clients) and the auth cookie (admin browser clients).
func (a *Authenticator) extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if tokenString := strings.TrimPrefix(authHeader, "Bearer "); tokenString != authHeader {
			return strings.TrimSpace(tokenString)
		}
		return ""
	}
	if cookie, err := r.Cookie(a.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware rejects the request before any handler logic runs unless
// a valid token is presented. Either the full claims are attached to
// the context, or the request ends here with 401.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := a.extractToken(r)
		if tokenString == "" {
			response.Error(w, http.StatusUnauthorized, "Missing credentials", "Provide a Bearer token or auth cookie")
			return
		}

		claims, err := a.tokens.Validate(tokenString)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token", "")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// ClaimsFrom returns the authenticated claims attached by Middleware.
func ClaimsFrom(r *http.Request) (*token.Claims, bool) {
	claims, ok := r.Context().Value(UserContextKey).(*token.Claims)
	return claims, ok
}
