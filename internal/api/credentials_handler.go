package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/beepbeepai/alttext-api/internal/api/shared"
	"github.com/beepbeepai/alttext-api/internal/quota"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// CredentialsHandler manages the installation's identity with the remote
// generation service: the bearer token, the organization license, and the
// site hash that scopes quota tracking to this deployment.
type CredentialsHandler struct {
	creds      store.CredentialStore
	reconciler *quota.Reconciler
	logger     *slog.Logger
}

// NewCredentialsHandler creates a CredentialsHandler.
func NewCredentialsHandler(
	creds store.CredentialStore,
	reconciler *quota.Reconciler,
	logger *slog.Logger,
) *CredentialsHandler {
	return &CredentialsHandler{
		creds:      creds,
		reconciler: reconciler,
		logger:     logger.With("component", "credentials_handler"),
	}
}

// CredentialsRequest updates stored credentials. Fields left empty keep
// their current value; clearing goes through the DELETE endpoints.
type CredentialsRequest struct {
	Token       string          `json:"token"        validate:"omitempty,max=4096"`
	LicenseKey  string          `json:"license_key"  validate:"omitempty,max=255"`
	LicenseData json.RawMessage `json:"license_data"`
}

// CredentialsResponse reports credential state without ever echoing the
// secrets back.
type CredentialsResponse struct {
	SiteHash   string    `json:"site_hash"`
	HasToken   bool      `json:"has_token"`
	HasLicense bool      `json:"has_license"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status handles GET /credentials.
func (h *CredentialsHandler) Status(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to read credentials", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toCredentialsResponse(creds))
}

// Save handles PUT /credentials. The first save bootstraps the site hash;
// an empty body is a valid way to do just that.
func (h *CredentialsHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "credential fields exceed limits")
		return
	}

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to read credentials", err)
		return
	}

	if creds.SiteHash == "" {
		creds.SiteHash = uuid.NewString()
		h.logger.InfoContext(r.Context(), "site hash bootstrapped")
	}
	if req.Token != "" {
		creds.Token = req.Token
	}
	if req.LicenseKey != "" {
		creds.LicenseKey = req.LicenseKey
		creds.LicenseData = req.LicenseData
	}

	if err := h.creds.Save(r.Context(), creds); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			"failed to save credentials", err)
		return
	}

	// New credentials can mean a new quota pool.
	h.reconciler.Invalidate(r.Context())

	shared.RespondWithJSON(w, r, http.StatusOK, toCredentialsResponse(creds))
}

// ClearToken handles DELETE /credentials/token: log out of the personal
// account, keeping any license.
func (h *CredentialsHandler) ClearToken(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, h.creds.ClearToken)
}

// ClearLicense handles DELETE /credentials/license.
func (h *CredentialsHandler) ClearLicense(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, h.creds.ClearLicense)
}

func (h *CredentialsHandler) clear(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context) error,
) {
	if err := op(r.Context()); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to clear credentials", err)
		return
	}
	h.reconciler.Invalidate(r.Context())

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to read credentials", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toCredentialsResponse(creds))
}

func toCredentialsResponse(creds *store.Credentials) CredentialsResponse {
	return CredentialsResponse{
		SiteHash:   creds.SiteHash,
		HasToken:   creds.Token != "",
		HasLicense: creds.LicenseKey != "",
		UpdatedAt:  creds.UpdatedAt,
	}
}
