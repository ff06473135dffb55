package models

import "time"

// EventType тип записи журнала событий сессии
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventSessionClosed  EventType = "session_closed"
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventLockAcquired   EventType = "lock_acquired"
	EventLockReleased   EventType = "lock_released"
)

// Причины принудительных переходов. Используются в Detail журнала,
// в UserLeftPayload.Reason и LockReleasedPayload.Reason.
const (
	ReasonLeave    = "leave"    // явный выход участника
	ReasonTimeout  = "timeout"  // эвикция по heartbeat timeout
	ReasonExpired  = "expired"  // превышен максимальный срок удержания лока
	ReasonAdmin    = "admin"    // административное снятие лока
	ReasonReleased = "released" // добровольный release держателем
)

// SessionEvent представляет одну запись журнала событий.
// Cursor updates в журнал не пишутся: слишком частые и не несут
// исторической ценности.
type SessionEvent struct {
	CreatedAt  time.Time `json:"created_at"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Detail     string    `json:"detail,omitempty"` // причина или доп. контекст
	Type       EventType `json:"type"`
	ID         int64     `json:"id"`
}
