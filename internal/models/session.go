package models

import "time"

// Role представляет роль участника в сессии.
// Роль информационная: протокол не ограничивает операции по роли,
// гейтинг (если нужен) делает вызывающий слой до обращения к протоколу.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
)

// CursorPosition представляет позицию курсора участника.
// Значение заменяется целиком при каждом обновлении, поля не мержатся.
type CursorPosition struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	ViewportWidth  float64 `json:"viewport_width,omitempty"`  // размеры канваса отправителя
	ViewportHeight float64 `json:"viewport_height,omitempty"` // для пересчета координат
}

// Participant представляет одного подключенного пользователя сессии
type Participant struct {
	JoinedAt           time.Time       `json:"joined_at"`       // время первого join (сохраняется при reconnect)
	LastHeartbeat      time.Time       `json:"last_heartbeat"`  // последний heartbeat, основание для эвикции
	CursorUpdatedAt    time.Time       `json:"cursor_updated_at"`
	UserID             string          `json:"user_id"`
	DisplayName        string          `json:"display_name"`
	Color              string          `json:"color"` // назначается сервером, стабилен между reconnect
	ConnectionID       string          `json:"-"`     // авторитетное (последнее) соединение участника
	SelectedResourceID string          `json:"selected_resource_id,omitempty"`
	Role               Role            `json:"role"`
	Cursor             *CursorPosition `json:"cursor"`
}

// EditLock представляет эксклюзивный лок на ресурс внутри сессии.
// Инвариант: на один resource id существует не больше одного лока,
// лок никогда не переназначается молча.
type EditLock struct {
	AcquiredAt time.Time `json:"acquired_at"`
	ResourceID string    `json:"resource_id"`
	HolderID   string    `json:"holder_id"`
}

// SessionSnapshot представляет точку во времени состояния сессии.
// Participants идут в порядке join.
type SessionSnapshot struct {
	TakenAt      time.Time     `json:"taken_at"`
	SessionID    string        `json:"session_id"`
	Participants []Participant `json:"participants"`
	Locks        []EditLock    `json:"locks"`
}

// CursorStale сообщает, должен ли рендер считать курсор устаревшим.
// Чистая функция от (now - updatedAt): вычисляется в месте отдачи снимка,
// без таймеров на каждый курсор. Курсор, который ни разу не обновлялся,
// устаревшим не считается - его просто нет.
func CursorStale(now, updatedAt time.Time, window time.Duration) bool {
	if updatedAt.IsZero() {
		return false
	}
	return now.Sub(updatedAt) > window
}
