package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/presence"
	"github.com/iudanet/boardsync/internal/validation"
	"github.com/iudanet/boardsync/pkg/api"
)

// Presence определяет интерфейс протокола присутствия, нужный handlers.
// Реализуется presence.Registry.
type Presence interface {
	CreateSession(sessionID string) error
	Join(ctx context.Context, sessionID string, id presence.Identity) (*presence.Subscription, error)
	Leave(sessionID, userID string) error
	DetachConn(sessionID, connID string)
	Heartbeat(sessionID, connID string) error
	UpdateCursor(sessionID, connID string, pos models.CursorPosition, selectedResourceID string) error
	AcquireLock(sessionID, connID, resourceID string) error
	ReleaseLock(sessionID, connID, resourceID string) error
	ForceReleaseLock(ctx context.Context, sessionID, resourceID string) (bool, error)
	Snapshot(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
}

// HistoryStorage определяет интерфейс чтения журнала событий
type HistoryStorage interface {
	SessionEvents(ctx context.Context, sessionID string, limit int) ([]*models.SessionEvent, error)
}

// SessionHandler обслуживает pull-поверхность: регистрацию сессий,
// снимки и журнал. Снимок читается из того же состояния registry,
// что порождает push-события (инвариант реконсиляции).
type SessionHandler struct {
	logger   *slog.Logger
	presence Presence
	history  HistoryStorage
}

// NewSessionHandler создает handler pull-поверхности.
// history может быть nil, тогда /history отвечает 404.
func NewSessionHandler(logger *slog.Logger, p Presence, history HistoryStorage) *SessionHandler {
	return &SessionHandler{
		logger:   logger,
		presence: p,
		history:  history,
	}
}

// Create обрабатывает POST /api/v1/sessions.
// Вызывается слоем документов при открытии доски; join в
// незарегистрированную сессию всегда падает с session_not_found.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.presence.CreateSession(req.SessionID); err != nil {
		if errors.Is(err, presence.ErrSessionExists) {
			writeError(w, h.logger, http.StatusConflict, "session_exists", "session is already active")
			return
		}
		h.logger.Error("failed to create session", "session_id", req.SessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "")
		return
	}

	// Время создания отдаем из снимка, чтобы не плодить вторые часы
	snap, err := h.presence.Snapshot(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("failed to read created session", "session_id", req.SessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, api.CreateSessionResponse{
		SessionID: req.SessionID,
		CreatedAt: snap.TakenAt,
	})
}

// Snapshot обрабатывает GET /api/v1/sessions/{sessionID}.
// Полный pull-снимок для коллабораторов без push-соединения.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	snap, err := h.presence.Snapshot(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, presence.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "session_not_found", "")
			return
		}
		h.logger.Error("failed to take snapshot", "session_id", sessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, toAPISnapshot(snap))
}

// History обрабатывает GET /api/v1/sessions/{sessionID}/history?limit=N
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, h.logger, http.StatusNotFound, "history_disabled", "journal is not configured")
		return
	}
	sessionID := mux.Vars(r)["sessionID"]

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid limit parameter")
			return
		}
	}

	events, err := h.history.SessionEvents(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to read session history", "session_id", sessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "")
		return
	}

	resp := api.HistoryResponse{
		SessionID: sessionID,
		Events:    make([]api.EventInfo, 0, len(events)),
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, api.EventInfo{
			Type:       string(ev.Type),
			UserID:     ev.UserID,
			ResourceID: ev.ResourceID,
			Detail:     ev.Detail,
			CreatedAt:  ev.CreatedAt,
		})
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// toAPISnapshot конвертирует снимок в API формат
func toAPISnapshot(snap models.SessionSnapshot) api.SnapshotResponse {
	resp := api.SnapshotResponse{
		SessionID:    snap.SessionID,
		TakenAt:      snap.TakenAt,
		Participants: make([]api.ParticipantInfo, 0, len(snap.Participants)),
		Locks:        make([]api.LockInfo, 0, len(snap.Locks)),
	}
	for _, p := range snap.Participants {
		info := api.ParticipantInfo{
			UserID:             p.UserID,
			DisplayName:        p.DisplayName,
			Color:              p.Color,
			Role:               string(p.Role),
			SelectedResourceID: p.SelectedResourceID,
			LastHeartbeat:      p.LastHeartbeat,
		}
		if p.Cursor != nil {
			info.Cursor = &api.Position{
				X:              p.Cursor.X,
				Y:              p.Cursor.Y,
				ViewportWidth:  p.Cursor.ViewportWidth,
				ViewportHeight: p.Cursor.ViewportHeight,
			}
		}
		resp.Participants = append(resp.Participants, info)
	}
	for _, l := range snap.Locks {
		resp.Locks = append(resp.Locks, api.LockInfo{
			ResourceID: l.ResourceID,
			HolderID:   l.HolderID,
			AcquiredAt: l.AcquiredAt,
		})
	}
	return resp
}
