package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/domain/meeting"
)

type MeetingHandler struct {
	meetings *meeting.Service
	logger   *zap.Logger
}

func NewMeetingHandler(meetings *meeting.Service, logger *zap.Logger) *MeetingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeetingHandler{meetings: meetings, logger: logger}
}

// CreateMeetingRequest registers an uploaded recording by reference.
type CreateMeetingRequest struct {
	Title           string   `json:"title"`
	StorageRef      string   `json:"storageRef"`
	DurationSeconds int      `json:"durationSeconds"`
	Speakers        []string `json:"speakers"`
}

type UpdateTranscriptRequest struct {
	Transcript string `json:"transcript"`
}

type RenameSpeakerRequest struct {
	DisplayName string `json:"displayName"`
}

type UpdateDurationRequest struct {
	DurationSeconds int `json:"durationSeconds"`
}

type ListMeetingsResponse struct {
	Data []*meeting.Meeting `json:"data"`
	Meta Meta               `json:"meta"`
}

// CreateMeeting handles POST /api/v1/meetings.
func (h *MeetingHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req CreateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.meetings.Create(r.Context(), meeting.CreateInput{
		Title:           req.Title,
		StorageRef:      req.StorageRef,
		DurationSeconds: req.DurationSeconds,
		Speakers:        req.Speakers,
		CreatedBy:       actorFrom(r.Context()),
	})
	if err != nil {
		h.fail(w, err, "Failed to upload meeting. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMeetings handles GET /api/v1/meetings with pagination.
func (h *MeetingHandler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	items, total, err := h.meetings.List(r.Context(), meeting.ListInput{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		h.fail(w, err, "Failed to list meetings. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, ListMeetingsResponse{
		Data: items,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}

// GetMeeting handles GET /api/v1/meetings/{id}.
func (h *MeetingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := h.meetings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "Failed to load meeting. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateTranscript handles PUT /api/v1/meetings/{id}/transcript.
func (h *MeetingHandler) UpdateTranscript(w http.ResponseWriter, r *http.Request) {
	var req UpdateTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.meetings.UpdateTranscript(r.Context(), chi.URLParam(r, "id"), req.Transcript, actorFrom(r.Context()))
	if err != nil {
		h.fail(w, err, "Failed to update transcript. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RenameSpeaker handles PUT /api/v1/meetings/{id}/speakers/{label}.
func (h *MeetingHandler) RenameSpeaker(w http.ResponseWriter, r *http.Request) {
	var req RenameSpeakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.meetings.RenameSpeaker(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "label"),
		req.DisplayName, actorFrom(r.Context()))
	if err != nil {
		h.fail(w, err, "Failed to update speaker name. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateDuration handles PUT /api/v1/meetings/{id}/duration.
func (h *MeetingHandler) UpdateDuration(w http.ResponseWriter, r *http.Request) {
	var req UpdateDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.meetings.UpdateDuration(r.Context(), chi.URLParam(r, "id"), req.DurationSeconds, actorFrom(r.Context()))
	if err != nil {
		h.fail(w, err, "Failed to update duration. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// fail maps meeting errors to a status. Validation messages are returned as
// is; anything unexpected is logged and answered with the generic message.
func (h *MeetingHandler) fail(w http.ResponseWriter, err error, generic string) {
	switch {
	case errors.Is(err, meeting.ErrNotFound):
		writeError(w, http.StatusNotFound, "meeting not found")
	case errors.Is(err, meeting.ErrSpeakerNotFound):
		writeError(w, http.StatusNotFound, "speaker not found")
	case errors.Is(err, meeting.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("meeting request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, generic)
	}
}
