// Package handlers translates HTTP requests into domain calls and maps
// domain errors to status codes with generic user-facing messages.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zime-ai/nucleus/internal/api/ctxkeys"
	domainauth "github.com/zime-ai/nucleus/internal/domain/auth"
)

// paginationParams holds parsed limit and offset values.
type paginationParams struct {
	Limit  int
	Offset int
}

const (
	defaultPaginationLimit = 25
	maxPaginationLimit     = 100
)

// Meta contains pagination metadata.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePaginationParams extracts and validates limit/offset from URL query params.
func parsePaginationParams(r *http.Request) paginationParams {
	limit := defaultPaginationLimit
	offset := 0

	if lim, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && lim > 0 {
		if lim > maxPaginationLimit {
			lim = maxPaginationLimit
		}
		limit = lim
	}

	if off, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && off >= 0 {
		offset = off
	}

	return paginationParams{Limit: limit, Offset: offset}
}

// principalFrom rebuilds the authenticated principal the auth middleware injected.
func principalFrom(ctx context.Context) (*domainauth.Principal, bool) {
	email := ctxkeys.Value(ctx, ctxkeys.Email)
	if email == "" {
		return nil, false
	}
	return &domainauth.Principal{
		Email:     email,
		SessionID: ctxkeys.Value(ctx, ctxkeys.SessionID),
		Provider:  ctxkeys.Value(ctx, ctxkeys.Provider),
	}, true
}

// actorFrom returns the authenticated email, or "" outside the auth middleware.
func actorFrom(ctx context.Context) string {
	return ctxkeys.Value(ctx, ctxkeys.Email)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}
