package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/beepbeepai/alttext-api/internal/api/shared"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// SubjectHandler exposes subject registration and lookup.
type SubjectHandler struct {
	subjects store.SubjectStore
	logger   *slog.Logger
}

// NewSubjectHandler creates a SubjectHandler.
func NewSubjectHandler(subjects store.SubjectStore, logger *slog.Logger) *SubjectHandler {
	return &SubjectHandler{
		subjects: subjects,
		logger:   logger.With("component", "subject_handler"),
	}
}

// SubjectRequest registers a subject's image metadata.
type SubjectRequest struct {
	URL      string `json:"url"       validate:"required,url"`
	MimeType string `json:"mime_type" validate:"omitempty,max=100"`
	Width    int    `json:"width"     validate:"gte=0"`
	Height   int    `json:"height"    validate:"gte=0"`
	Filename string `json:"filename"  validate:"omitempty,max=255"`
	Title    string `json:"title"     validate:"omitempty,max=500"`
	Caption  string `json:"caption"   validate:"omitempty,max=2000"`
}

// Upsert handles PUT /subjects/{id}.
func (h *SubjectHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	id, err := pathSubjectID(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "subject ID must be a positive integer")
		return
	}

	var req SubjectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "url is required and must be valid")
		return
	}

	subject := &store.Subject{
		ID:       id,
		URL:      req.URL,
		MimeType: req.MimeType,
		Width:    req.Width,
		Height:   req.Height,
		Filename: req.Filename,
		Title:    req.Title,
		Caption:  req.Caption,
	}
	if err := h.subjects.Save(r.Context(), subject); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			"failed to save subject", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, subject)
}

// Get handles GET /subjects/{id}.
func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathSubjectID(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "subject ID must be a positive integer")
		return
	}

	subject, err := h.subjects.Get(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			"subject not found", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, subject)
}

func pathSubjectID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, store.ErrInvalidEntity
	}
	return id, nil
}
