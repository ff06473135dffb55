package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/presence"
	"github.com/iudanet/boardsync/internal/validation"
	"github.com/iudanet/boardsync/pkg/api"
)

const writeWait = 10 * time.Second

// WSHandler обслуживает push-канал: одно websocket-соединение на сессию.
// Входящие конверты становятся операциями в потоке сессии, исходящие
// события вычитываются из подписки и пишутся в сокет одной горутиной.
type WSHandler struct {
	logger   *slog.Logger
	presence Presence
	upgrader websocket.Upgrader
}

// NewWSHandler создает handler push-канала
func NewWSHandler(logger *slog.Logger, p Presence) *WSHandler {
	return &WSHandler{
		logger:   logger,
		presence: p,
		upgrader: websocket.Upgrader{
			// Origin проверяет внешний периметр; сам протокол доверяет токену
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve обрабатывает GET /api/v1/sessions/{sessionID}/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	identity, ok := GetIdentity(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	if err := validation.ValidateSessionID(sessionID); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := validation.ValidateUserID(identity.UserID); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub, err := h.presence.Join(r.Context(), sessionID, presence.Identity{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Role:        models.Role(identity.Role),
	})
	if err != nil {
		// Сессия не существует или истекла: сообщаем и закрываем,
		// сервер никогда не создает сессию неявно.
		h.logger.Info("join rejected", "session_id", sessionID, "user_id", identity.UserID, "error", err)
		env, _ := api.NewEnvelope(api.TypeError, sessionID, identity.UserID, api.ErrorPayload{
			Code:    "session_not_found",
			Message: "session does not exist or has expired",
		}, time.Now())
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteJSON(env)
		_ = ws.Close()
		return
	}

	h.logger.Info("push connection established",
		"session_id", sessionID, "user_id", identity.UserID, "conn_id", sub.ConnID)

	// Локальные ошибки (invalid_message) уходят клиенту через ту же
	// пишущую горутину, что и события подписки: у сокета один писатель.
	local := make(chan api.Envelope, 8)
	go h.writePump(ws, sub, local)

	h.readLoop(ws, sub, sessionID, identity, local)

	// Обрыв транспорта не эвиктит участника: это задача heartbeat-монитора
	h.presence.DetachConn(sessionID, sub.ConnID)
	h.logger.Info("push connection closed",
		"session_id", sessionID, "user_id", identity.UserID, "conn_id", sub.ConnID)
}

// writePump - единственный писатель сокета. Завершается, когда подписка
// закрыта сервером (detach/teardown) или запись падает.
func (h *WSHandler) writePump(ws *websocket.Conn, sub *presence.Subscription, local <-chan api.Envelope) {
	defer ws.Close()
	for {
		var (
			env api.Envelope
			ok  bool
		)
		select {
		case env, ok = <-sub.Events:
			if !ok {
				// Сервер отписал соединение: вежливо закрываем сокет
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
		case env, ok = <-local:
			if !ok {
				return
			}
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(env); err != nil {
			h.logger.Debug("failed to write event", "conn_id", sub.ConnID, "error", err)
			return
		}
	}
}

// readLoop читает конверты клиента и превращает их в операции протокола.
// FIFO одного отправителя обеспечен самим циклом: следующее сообщение
// не читается, пока предыдущее не поставлено в поток сессии.
func (h *WSHandler) readLoop(ws *websocket.Conn, sub *presence.Subscription, sessionID string, identity Identity, local chan<- api.Envelope) {
	defer close(local)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var env api.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.rejectMessage(local, sessionID, identity.UserID, "malformed message envelope")
			continue
		}
		// Личность берется из токена соединения; конверт с чужим userId -
		// попытка спуфинга через устаревшее соединение.
		if env.UserID != "" && env.UserID != identity.UserID {
			h.rejectMessage(local, sessionID, identity.UserID, "envelope user_id does not match connection identity")
			continue
		}
		if env.SessionID != "" && env.SessionID != sessionID {
			h.rejectMessage(local, sessionID, identity.UserID, "envelope session_id does not match connection")
			continue
		}

		payload, err := env.Decode()
		if err != nil {
			h.rejectMessage(local, sessionID, identity.UserID, err.Error())
			continue
		}

		var opErr error
		switch env.Type {
		case api.TypeHeartbeat:
			opErr = h.presence.Heartbeat(sessionID, sub.ConnID)

		case api.TypeCursorUpdate:
			cur := payload.(*api.CursorUpdatePayload)
			opErr = h.presence.UpdateCursor(sessionID, sub.ConnID, models.CursorPosition{
				X:              cur.Position.X,
				Y:              cur.Position.Y,
				ViewportWidth:  cur.Position.ViewportWidth,
				ViewportHeight: cur.Position.ViewportHeight,
			}, cur.SelectedResourceID)

		case api.TypeLockAcquire:
			req := payload.(*api.LockAcquirePayload)
			if err := validation.ValidateResourceID(req.ResourceID); err != nil {
				h.rejectMessage(local, sessionID, identity.UserID, err.Error())
				continue
			}
			opErr = h.presence.AcquireLock(sessionID, sub.ConnID, req.ResourceID)

		case api.TypeLockRelease:
			req := payload.(*api.LockReleasePayload)
			if err := validation.ValidateResourceID(req.ResourceID); err != nil {
				h.rejectMessage(local, sessionID, identity.UserID, err.Error())
				continue
			}
			opErr = h.presence.ReleaseLock(sessionID, sub.ConnID, req.ResourceID)

		case api.TypeLeave:
			// Явный выход: участник убирается сразу, соединение клиент
			// закрывает сам (и получит user_left перед этим).
			opErr = h.presence.Leave(sessionID, identity.UserID)

		case api.TypeJoin:
			// Join происходит при установке соединения; повторный
			// конверт join безвреден и игнорируется.
			h.logger.Debug("redundant join message", "conn_id", sub.ConnID)

		default:
			h.rejectMessage(local, sessionID, identity.UserID, "unsupported client message type: "+env.Type)
		}

		if opErr != nil {
			if errors.Is(opErr, presence.ErrSessionNotFound) || errors.Is(opErr, presence.ErrRegistryClosed) {
				// Сессия умерла под ногами - соединению больше нечего делать
				return
			}
			h.logger.Error("failed to apply operation",
				"type", env.Type, "conn_id", sub.ConnID, "error", opErr)
		}
	}
}

// rejectMessage отвечает invalid_message только нарушившему соединению;
// поток операций сессии для остальных участников не затрагивается.
func (h *WSHandler) rejectMessage(local chan<- api.Envelope, sessionID, userID, message string) {
	env, err := api.NewEnvelope(api.TypeError, sessionID, userID, api.ErrorPayload{
		Code:    "invalid_message",
		Message: message,
	}, time.Now())
	if err != nil {
		return
	}
	select {
	case local <- env:
	default:
		// Писатель мертв или переполнен - сообщение об ошибке теряется
	}
}
