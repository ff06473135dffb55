package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/boardsync/internal/models"
)

// defaultHistoryLimit лимит выборки журнала, когда вызывающий его не задал
const defaultHistoryLimit = 100

// AppendEvent записывает одно событие журнала
func (s *Storage) AppendEvent(ctx context.Context, ev *models.SessionEvent) error {
	query := `
		INSERT INTO session_events (session_id, event_type, user_id, resource_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.SessionID,
		string(ev.Type),
		ev.UserID,
		ev.ResourceID,
		ev.Detail,
		ev.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

// SessionEvents возвращает последние события сессии, новые первыми
func (s *Storage) SessionEvents(ctx context.Context, sessionID string, limit int) ([]*models.SessionEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, session_id, event_type, user_id, resource_id, detail, created_at
		FROM session_events
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.SessionEvent, 0)
	for rows.Next() {
		var (
			ev        models.SessionEvent
			eventType string
			createdAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &eventType, &ev.UserID, &ev.ResourceID, &ev.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		ev.Type = models.EventType(eventType)
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session events: %w", err)
	}

	return events, nil
}
