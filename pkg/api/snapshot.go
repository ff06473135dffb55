package api

import "time"

// CreateSessionRequest представляет запрос на регистрацию сессии.
// Вызывается слоем документов при открытии доски, не клиентами напрямую.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

// CreateSessionResponse представляет ответ на регистрацию сессии
type CreateSessionResponse struct {
	CreatedAt time.Time `json:"created_at"`
	SessionID string    `json:"session_id"`
}

// ParticipantInfo представляет участника в pull-снимке.
// Cursor равен null если участник не присылал курсор или курсор устарел
// (staleness window); сам участник при этом остается в списке.
type ParticipantInfo struct {
	LastHeartbeat      time.Time `json:"last_heartbeat"`
	UserID             string    `json:"user_id"`
	DisplayName        string    `json:"display_name"`
	Color              string    `json:"color"`
	Role               string    `json:"role"`
	SelectedResourceID string    `json:"selected_resource_id,omitempty"`
	Cursor             *Position `json:"cursor"`
}

// LockInfo представляет активный лок в pull-снимке
type LockInfo struct {
	AcquiredAt time.Time `json:"acquired_at"`
	ResourceID string    `json:"resource_id"`
	HolderID   string    `json:"holder_id"`
}

// SnapshotResponse представляет полный pull-снимок сессии.
// Участники идут в порядке join для детерминизма.
type SnapshotResponse struct {
	TakenAt      time.Time         `json:"taken_at"`
	SessionID    string            `json:"session_id"`
	Participants []ParticipantInfo `json:"participants"`
	Locks        []LockInfo        `json:"locks"`
}

// EventInfo представляет одну запись журнала событий сессии
type EventInfo struct {
	CreatedAt  time.Time `json:"created_at"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// HistoryResponse представляет ответ журнала событий
type HistoryResponse struct {
	SessionID string      `json:"session_id"`
	Events    []EventInfo `json:"events"`
}

// ForceReleaseResponse представляет ответ административного снятия лока
type ForceReleaseResponse struct {
	SessionID  string `json:"session_id"`
	ResourceID string `json:"resource_id"`
	Released   bool   `json:"released"` // false если лок уже не держался
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
