// Package journal пишет события сессий в хранилище асинхронно.
// Горутины сессий не должны блокироваться на диске: Record кладет
// событие в буфер и возвращается; потеря журнальной записи при
// переполнении или остановке не влияет на состояние протокола.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

const (
	defaultBuffer = 1024
	writeTimeout  = 5 * time.Second
)

// Journal реализует presence.EventSink поверх storage.EventStorage
type Journal struct {
	store  storage.EventStorage
	logger *slog.Logger
	ch     chan models.SessionEvent
	wg     sync.WaitGroup

	mu      sync.Mutex
	dropped int
	closed  bool
}

// New создает журнал и запускает писателя
func New(store storage.EventStorage, logger *slog.Logger) *Journal {
	j := &Journal{
		store:  store,
		logger: logger,
		ch:     make(chan models.SessionEvent, defaultBuffer),
	}
	j.wg.Add(1)
	go j.writer()
	return j
}

// Record ставит событие в очередь записи, никогда не блокируется.
// При переполненном буфере событие теряется с предупреждением в логе.
func (j *Journal) Record(ev models.SessionEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}

	select {
	case j.ch <- ev:
	default:
		j.dropped++
		if j.dropped == 1 || j.dropped%100 == 0 {
			j.logger.Warn("journal buffer full, dropping events", "dropped", j.dropped)
		}
	}
}

// Close дописывает накопленное и останавливает писателя
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.mu.Unlock()

	close(j.ch)
	j.wg.Wait()
}

func (j *Journal) writer() {
	defer j.wg.Done()
	for ev := range j.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := j.store.AppendEvent(ctx, &ev); err != nil {
			j.logger.Error("failed to append journal event",
				"session_id", ev.SessionID, "type", ev.Type, "error", err)
		}
		cancel()
	}
}
