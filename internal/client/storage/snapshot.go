package storage

import (
	"context"

	"github.com/iudanet/boardsync/pkg/api"
)

// SnapshotStorage определяет интерфейс кэша последних снимков сессий.
// Кэш нужен для offline status: показать, что видели в последний раз,
// когда сервер недоступен.
type SnapshotStorage interface {
	// SaveSnapshot сохраняет снимок сессии, перезаписывая предыдущий
	SaveSnapshot(ctx context.Context, snap *CachedSnapshot) error

	// GetSnapshot возвращает последний сохраненный снимок сессии.
	// Returns ErrSnapshotNotFound if nothing was cached.
	GetSnapshot(ctx context.Context, sessionID string) (*CachedSnapshot, error)
}

// CachedSnapshot - снимок сессии с моментом получения
type CachedSnapshot struct {
	FetchedAt int64                `json:"fetched_at"` // unix seconds
	Snapshot  api.SnapshotResponse `json:"snapshot"`
}
