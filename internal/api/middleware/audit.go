package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/api/ctxkeys"
	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
)

// AuditRecorder is the minimal contract used by Audit.
// *domainaudit.Service satisfies this interface.
type AuditRecorder interface {
	Record(ctx context.Context, e domainaudit.Entry) error
}

// Audit records failed mutating requests on protected routes. Successful
// mutations are audited by the domain services themselves.
// Expected order in router: Auth -> Audit -> handlers. logger may be nil.
func Audit(recorder AuditRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if recorder == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			actor := ctxkeys.Value(r.Context(), ctxkeys.Email)
			if actor == "" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			if rec.statusCode < http.StatusBadRequest {
				return
			}

			entityType, entityID := entityFromPath(r.URL.Path)
			err := recorder.Record(r.Context(), domainaudit.Entry{
				Actor:      actor,
				Action:     strings.ToLower(r.Method) + "_" + entityTypeOr(entityType, "request"),
				EntityType: entityType,
				EntityID:   entityID,
				Details: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status_code": rec.statusCode,
					"duration_ms": time.Since(start).Milliseconds(),
				},
				Outcome: outcomeFromStatus(rec.statusCode),
			})
			if err != nil {
				logger.Error("audit record failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func outcomeFromStatus(statusCode int) domainaudit.Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return domainaudit.OutcomeSuccess
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domainaudit.OutcomeDenied
	default:
		return domainaudit.OutcomeError
	}
}

// entityFromPath maps /api/v1/<collection>/<id>/... to an entity type and id.
func entityFromPath(path string) (string, string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "api" || segments[1] != "v1" {
		return "", ""
	}
	rest := segments[2:]
	if rest[0] == "deal-stage" && len(rest) > 1 {
		rest = rest[1:]
	}

	entityType := singularEntity(rest[0])
	if entityType == "" || len(rest) < 2 {
		return entityType, ""
	}
	return entityType, rest[1]
}

func singularEntity(collection string) string {
	entityMap := map[string]string{
		"meetings": "meeting",
		"wizards":  "deal_stage_wizard",
		"mappings": "deal_stage_mapping",
	}
	return entityMap[collection]
}

func entityTypeOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
