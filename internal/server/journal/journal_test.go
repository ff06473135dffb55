package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/models"
)

// mockEventStorage is a mock implementation of storage.EventStorage for testing
type mockEventStorage struct {
	mu        sync.Mutex
	events    []*models.SessionEvent
	appendErr error
}

func (m *mockEventStorage) AppendEvent(ctx context.Context, ev *models.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockEventStorage) SessionEvents(ctx context.Context, sessionID string, limit int) ([]*models.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events, nil
}

func (m *mockEventStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJournalWritesEvents(t *testing.T) {
	store := &mockEventStorage{}
	j := New(store, testLogger())

	j.Record(models.SessionEvent{SessionID: "s1", Type: models.EventSessionCreated})
	j.Record(models.SessionEvent{SessionID: "s1", Type: models.EventUserJoined, UserID: "alice"})
	j.Close() // Close дожидается писателя

	require.Equal(t, 2, store.count())
	assert.Equal(t, models.EventSessionCreated, store.events[0].Type)
	assert.Equal(t, "alice", store.events[1].UserID)
}

func TestJournalSurvivesStorageErrors(t *testing.T) {
	store := &mockEventStorage{appendErr: errors.New("disk full")}
	j := New(store, testLogger())

	// Ошибка записи не паникует и не блокирует
	j.Record(models.SessionEvent{SessionID: "s1", Type: models.EventUserJoined})
	j.Close()

	assert.Equal(t, 0, store.count())
}

func TestJournalRecordAfterClose(t *testing.T) {
	store := &mockEventStorage{}
	j := New(store, testLogger())
	j.Close()

	// Record после Close - no-op, без паники на закрытом канале
	j.Record(models.SessionEvent{SessionID: "s1", Type: models.EventUserJoined})
	assert.Equal(t, 0, store.count())
}
