package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/domain/dealstage"
)

// DealStageHandler serves the catalog, the mapping wizard and stored mappings.
type DealStageHandler struct {
	svc    *dealstage.Service
	logger *zap.Logger
}

func NewDealStageHandler(svc *dealstage.Service, logger *zap.Logger) *DealStageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DealStageHandler{svc: svc, logger: logger}
}

type SelectCompanyRequest struct {
	CompanyID int `json:"companyId"`
}

type SelectPipelineRequest struct {
	PipelineID int `json:"pipelineId"`
}

// MapStageRequest assigns a category; categoryId 0 clears the mapping.
type MapStageRequest struct {
	CategoryID int `json:"categoryId"`
}

// ===== CATALOG =====

// ListCompanies handles GET /api/v1/deal-stage/companies?search=.
func (h *DealStageHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.svc.Companies(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, err, "Failed to load companies. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": companies})
}

// ListPipelines handles GET /api/v1/deal-stage/pipelines?search=.
func (h *DealStageHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.svc.Pipelines(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, err, "Failed to load pipelines. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": pipelines})
}

// ListCategories handles GET /api/v1/deal-stage/categories.
func (h *DealStageHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to load categories. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": categories})
}

// ListMappings handles GET /api/v1/deal-stage/mappings?companyId=&pipelineId=.
func (h *DealStageHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	var f dealstage.MappingFilter
	var ok bool
	if f.CompanyID, ok = optionalInt(r, "companyId"); !ok {
		writeError(w, http.StatusBadRequest, "companyId must be a number")
		return
	}
	if f.PipelineID, ok = optionalInt(r, "pipelineId"); !ok {
		writeError(w, http.StatusBadRequest, "pipelineId must be a number")
		return
	}
	mappings, err := h.svc.Mappings(r.Context(), f)
	if err != nil {
		h.fail(w, err, "Failed to load mappings. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": mappings})
}

// ===== WIZARD =====

// StartWizard handles POST /api/v1/deal-stage/wizards.
func (h *DealStageHandler) StartWizard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.svc.Start(r.Context(), actorFrom(r.Context())))
}

// GetWizard handles GET /api/v1/deal-stage/wizards/{id}.
func (h *DealStageHandler) GetWizard(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	h.respond(w, v, err)
}

// DeleteWizard handles DELETE /api/v1/deal-stage/wizards/{id}.
func (h *DealStageHandler) DeleteWizard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context())); err != nil {
		h.fail(w, err, "Failed to discard wizard. Please try again.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectCompany handles POST /api/v1/deal-stage/wizards/{id}/company.
func (h *DealStageHandler) SelectCompany(w http.ResponseWriter, r *http.Request) {
	var req SelectCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.SelectCompany(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), req.CompanyID)
	h.respond(w, v, err)
}

// SelectPipeline handles POST /api/v1/deal-stage/wizards/{id}/pipeline.
func (h *DealStageHandler) SelectPipeline(w http.ResponseWriter, r *http.Request) {
	var req SelectPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.SelectPipeline(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), req.PipelineID)
	h.respond(w, v, err)
}

// MapStage handles PUT /api/v1/deal-stage/wizards/{id}/mappings/{stage_id}.
func (h *DealStageHandler) MapStage(w http.ResponseWriter, r *http.Request) {
	stageID, err := strconv.Atoi(chi.URLParam(r, "stage_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "stage_id must be a number")
		return
	}
	var req MapStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.MapStage(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), stageID, req.CategoryID)
	h.respond(w, v, err)
}

// Next handles POST /api/v1/deal-stage/wizards/{id}/next.
func (h *DealStageHandler) Next(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Next(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	h.respond(w, v, err)
}

// Back handles POST /api/v1/deal-stage/wizards/{id}/back.
func (h *DealStageHandler) Back(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Back(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	h.respond(w, v, err)
}

// Refresh handles POST /api/v1/deal-stage/wizards/{id}/refresh.
func (h *DealStageHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Refresh(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	h.respond(w, v, err)
}

// Review handles GET /api/v1/deal-stage/wizards/{id}/review.
func (h *DealStageHandler) Review(w http.ResponseWriter, r *http.Request) {
	rv, err := h.svc.Review(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, err, "Failed to build review. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

// Confirm handles POST /api/v1/deal-stage/wizards/{id}/confirm. The outcome
// of the persistence step is carried on the returned wizard's status banner.
func (h *DealStageHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	h.respond(w, v, err)
}

func (h *DealStageHandler) respond(w http.ResponseWriter, v dealstage.View, err error) {
	if err != nil {
		h.fail(w, err, "Something went wrong. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *DealStageHandler) fail(w http.ResponseWriter, err error, generic string) {
	switch {
	case errors.Is(err, dealstage.ErrWizardNotFound):
		writeError(w, http.StatusNotFound, "wizard not found")
	case errors.Is(err, dealstage.ErrCompanyNotFound),
		errors.Is(err, dealstage.ErrPipelineNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dealstage.ErrUnknownStage),
		errors.Is(err, dealstage.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dealstage.ErrWrongStep),
		errors.Is(err, dealstage.ErrStepIncomplete),
		errors.Is(err, dealstage.ErrLastStep),
		errors.Is(err, dealstage.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("deal stage request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, generic)
	}
}

// optionalInt reads a numeric query parameter. Absent means zero.
func optionalInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}
