package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iudanet/boardsync/internal/server/presence"
	"github.com/iudanet/boardsync/pkg/api"
)

// AdminHandler обслуживает привилегированные операции (settings UI).
// Единственная операция пока - снять чужой лок от имени держателя.
type AdminHandler struct {
	logger   *slog.Logger
	presence Presence
}

// NewAdminHandler создает handler административной поверхности
func NewAdminHandler(logger *slog.Logger, p Presence) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		presence: p,
	}
}

// ForceRelease обрабатывает POST /api/v1/sessions/{sessionID}/locks/{resourceID}/release.
// Без admin claim в токене операция отвергается: обычный участник
// снимает только свои локи через push-канал.
func (h *AdminHandler) ForceRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentity(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	if !id.Admin {
		h.logger.Warn("non-admin force release attempt", "user_id", id.UserID)
		writeError(w, h.logger, http.StatusForbidden, "rejected", "admin privileges required")
		return
	}

	vars := mux.Vars(r)
	sessionID := vars["sessionID"]
	resourceID := vars["resourceID"]

	released, err := h.presence.ForceReleaseLock(r.Context(), sessionID, resourceID)
	if err != nil {
		if errors.Is(err, presence.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "session_not_found", "")
			return
		}
		h.logger.Error("failed to force release lock",
			"session_id", sessionID, "resource_id", resourceID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "")
		return
	}

	h.logger.Info("lock force-released by admin",
		"session_id", sessionID, "resource_id", resourceID, "admin_id", id.UserID)
	writeJSON(w, h.logger, http.StatusOK, api.ForceReleaseResponse{
		SessionID:  sessionID,
		ResourceID: resourceID,
		Released:   released,
	})
}
