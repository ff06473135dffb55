package storage

import (
	"context"

	"github.com/iudanet/boardsync/internal/models"
)

// EventStorage defines interface for session event journal persistence.
// Журнал - вспомогательная история протокольных событий (кто когда
// держал локи); состояние протокола от него не зависит.
type EventStorage interface {
	// AppendEvent записывает одно событие журнала
	AppendEvent(ctx context.Context, ev *models.SessionEvent) error

	// SessionEvents возвращает последние события сессии, новые первыми.
	// limit <= 0 трактуется как дефолтный лимит реализации.
	// Возвращает пустой slice, если событий нет.
	SessionEvents(ctx context.Context, sessionID string, limit int) ([]*models.SessionEvent, error)
}
