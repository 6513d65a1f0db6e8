package api

import (
	"log/slog"
	"net/http"

	"github.com/beepbeepai/alttext-api/internal/api/shared"
	"github.com/beepbeepai/alttext-api/internal/quota"
)

// UsageHandler exposes the quota snapshot.
type UsageHandler struct {
	reconciler *quota.Reconciler
	logger     *slog.Logger
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(reconciler *quota.Reconciler, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		reconciler: reconciler,
		logger:     logger.With("component", "usage_handler"),
	}
}

// Usage handles GET /usage. ?refresh=1 discards the cached snapshot first.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") != ""

	snap, err := h.reconciler.Usage(r.Context(), refresh)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to read usage", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, snap)
}
