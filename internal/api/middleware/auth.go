// Package middleware holds the HTTP middleware for protected routes.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/api/ctxkeys"
	domainauth "github.com/zime-ai/nucleus/internal/domain/auth"
)

// Authenticator resolves a bearer token. *domainauth.Gate satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domainauth.Principal, error)
}

// Auth validates the bearer session token on every request, including the
// email-domain check, and injects the principal into the context.
//
// Flow:
//  1. Read "Authorization: Bearer <token>"; missing or malformed → 401
//  2. Authenticate through the gate; outside the allowed domain → 403
//  3. Revoked, expired or unknown session → 401
//  4. Inject ctxkeys.Email, ctxkeys.SessionID, ctxkeys.Provider
func Auth(gate Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}

			p, err := gate.Authenticate(r.Context(), token)
			if errors.Is(err, domainauth.ErrAccessDenied) {
				writeJSONError(w, http.StatusForbidden, "Access denied.")
				return
			}
			if err != nil {
				if !errors.Is(err, domainauth.ErrSessionInvalid) {
					logger.Error("authenticate request", zap.Error(err))
				}
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := r.Context()
			ctx = ctxkeys.WithValue(ctx, ctxkeys.Email, p.Email)
			ctx = ctxkeys.WithValue(ctx, ctxkeys.SessionID, p.SessionID)
			ctx = ctxkeys.WithValue(ctx, ctxkeys.Provider, p.Provider)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken extracts the token from "Authorization: Bearer <token>".
// Returns empty string if header is missing, wrong scheme, or token is empty.
func ExtractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	// Must start with "Bearer " (case-sensitive per RFC 7235)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// writeJSONError uses the same {"error": msg} shape as the handlers package.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
