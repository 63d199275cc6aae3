package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
)

// AuditHandler exposes the audit trail read-only.
type AuditHandler struct {
	service *domainaudit.Service
	logger  *zap.Logger
}

func NewAuditHandler(service *domainaudit.Service, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{service: service, logger: logger}
}

// ListEvents handles GET /api/v1/audit.
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	items, total, err := h.service.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		h.logger.Error("list audit events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load audit log. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "meta": Meta{Total: total, Limit: page.Limit, Offset: page.Offset}})
}

// ListEntityEvents handles GET /api/v1/audit/{entity_type}/{entity_id}.
func (h *AuditHandler) ListEntityEvents(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	items, err := h.service.ListByEntity(r.Context(), chi.URLParam(r, "entity_type"), chi.URLParam(r, "entity_id"), page.Limit)
	if err != nil {
		h.logger.Error("list audit events by entity failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load audit log. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "meta": Meta{Total: len(items), Limit: page.Limit}})
}
