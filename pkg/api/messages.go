package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Типы сообщений push-канала.
// Клиентские сообщения и серверные события используют один конверт.
const (
	// Клиент -> сервер
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeHeartbeat    = "heartbeat"
	TypeCursorUpdate = "cursor_update"
	TypeLockAcquire  = "lock_acquire"
	TypeLockRelease  = "lock_release"

	// Сервер -> клиент
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypeLockAcquired = "lock_acquired"
	TypeLockDenied   = "lock_denied"
	TypeLockReleased = "lock_released"
	TypeHeartbeatAck = "heartbeat_ack"
	TypeError        = "error"
)

// ErrUnknownType возвращается при неизвестном типе сообщения
var ErrUnknownType = errors.New("unknown message type")

// Envelope представляет конверт сообщения push-канала.
// Payload зависит от Type; Decode возвращает типизированный payload.
type Envelope struct {
	Timestamp time.Time       `json:"timestamp"`            // Timestamp серверное время для событий сервера, клиентское для сообщений клиента
	Type      string          `json:"type"`                 // Type один из Type* констант
	SessionID string          `json:"session_id"`           // SessionID идентификатор сессии
	UserID    string          `json:"user_id"`              // UserID автор сообщения / субъект события
	Payload   json.RawMessage `json:"payload,omitempty"`    // Payload типизированное тело, см. *Payload структуры
}

// Position представляет позицию курсора на канвасе.
// Viewport размеры нужны клиентам для пересчета координат между канвасами разных размеров.
type Position struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	ViewportWidth  float64 `json:"viewport_width,omitempty"`
	ViewportHeight float64 `json:"viewport_height,omitempty"`
}

// CursorUpdatePayload тело сообщения cursor_update (в обе стороны)
type CursorUpdatePayload struct {
	Position           Position `json:"position"`
	SelectedResourceID string   `json:"selected_resource_id,omitempty"`
}

// LockAcquirePayload тело запроса lock_acquire
type LockAcquirePayload struct {
	ResourceID string `json:"resource_id"`
}

// LockReleasePayload тело запроса lock_release
type LockReleasePayload struct {
	ResourceID string `json:"resource_id"`
}

// UserJoinedPayload тело события user_joined
type UserJoinedPayload struct {
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Role        string `json:"role"`
}

// UserLeftPayload тело события user_left.
// Reason: "leave" для явного выхода, "timeout" для эвикции по heartbeat.
type UserLeftPayload struct {
	Reason string `json:"reason"`
}

// LockAcquiredPayload тело события lock_acquired
type LockAcquiredPayload struct {
	AcquiredAt time.Time `json:"acquired_at"`
	ResourceID string    `json:"resource_id"`
	HolderID   string    `json:"holder_id"`
}

// LockDeniedPayload тело ответа lock_denied
type LockDeniedPayload struct {
	ResourceID    string `json:"resource_id"`
	CurrentHolder string `json:"current_holder"`
}

// LockReleasedPayload тело события lock_released.
// Voluntary false когда лок снят не держателем:
// Reason "leave", "timeout", "expired" или "admin".
type LockReleasedPayload struct {
	ResourceID string `json:"resource_id"`
	HolderID   string `json:"holder_id"`
	Reason     string `json:"reason"`
	Voluntary  bool   `json:"voluntary"`
}

// ErrorPayload тело события error.
// Code: "invalid_message", "session_not_found", "not_a_participant",
// "lock_release_rejected".
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode разбирает Payload конверта в типизированную структуру.
// Для типов без payload (join, leave, heartbeat, heartbeat_ack) возвращает nil.
func (e *Envelope) Decode() (any, error) {
	switch e.Type {
	case TypeJoin, TypeLeave, TypeHeartbeat, TypeHeartbeatAck:
		return nil, nil
	case TypeCursorUpdate:
		return decodeAs[CursorUpdatePayload](e)
	case TypeLockAcquire:
		return decodeAs[LockAcquirePayload](e)
	case TypeLockRelease:
		return decodeAs[LockReleasePayload](e)
	case TypeUserJoined:
		return decodeAs[UserJoinedPayload](e)
	case TypeUserLeft:
		return decodeAs[UserLeftPayload](e)
	case TypeLockAcquired:
		return decodeAs[LockAcquiredPayload](e)
	case TypeLockDenied:
		return decodeAs[LockDeniedPayload](e)
	case TypeLockReleased:
		return decodeAs[LockReleasedPayload](e)
	case TypeError:
		return decodeAs[ErrorPayload](e)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
}

func decodeAs[T any](e *Envelope) (*T, error) {
	var v T
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("message %q requires payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %q payload: %w", e.Type, err)
	}
	return &v, nil
}

// NewEnvelope собирает конверт с сериализованным payload.
// payload nil допустим для типов без тела.
func NewEnvelope(msgType, sessionID, userID string, payload any, ts time.Time) (Envelope, error) {
	env := Envelope{
		Type:      msgType,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: ts,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %q payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return env, nil
}
