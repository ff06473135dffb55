// Package presence реализует протокол присутствия и edit-локов
// совместной сессии: членство, трансляцию курсоров, heartbeat liveness
// и взаимоисключающие локи на ресурсы.
//
// Все мутации состояния одной сессии сериализуются через одну горутину
// (session actor); registry только маршрутизирует операции в нужную
// сессию. Pull-снимки читаются через тот же актор, поэтому push-поток
// и pull-снимок не могут противоречить друг другу.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

// Identity представляет уже проверенную личность пользователя.
// Аутентификация происходит до обращения к протоколу (identity provider
// снаружи); registry ей доверяет.
type Identity struct {
	UserID      string
	DisplayName string
	Role        models.Role
}

// Subscription результат admit соединения в сессию.
// Events вычитывается транспортом до закрытия; канал закрывает сервер
// при detach соединения или уничтожении сессии.
type Subscription struct {
	ConnID      string
	Events      <-chan api.Envelope
	Participant models.Participant // запись участника на момент join
}

// EventSink принимает записи журнала событий сессии.
// Реализация обязана не блокироваться: вызывается из горутины сессии.
type EventSink interface {
	Record(ev models.SessionEvent)
}

// Registry держит активные сессии и маршрутизирует в них операции
type Registry struct {
	cfg      Config
	logger   *slog.Logger
	sink     EventSink
	now      func() time.Time
	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

// NewRegistry создает registry с заданными политиками.
// sink может быть nil - тогда журнал не ведется.
func NewRegistry(cfg Config, logger *slog.Logger, sink EventSink) *Registry {
	return &Registry{
		cfg:      cfg.normalize(),
		logger:   logger,
		sink:     sink,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// CreateSession регистрирует новую сессию. Вызывается слоем документов
// при открытии доски; join в незарегистрированную сессию падает с
// ErrSessionNotFound - сессии никогда не создаются неявно.
func (r *Registry) CreateSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.sessions[sessionID]; exists {
		return ErrSessionExists
	}

	s := newSession(sessionID, r.cfg, r.logger, r.sink, r.now, r.removeSession)
	r.sessions[sessionID] = s
	go s.run()

	if r.sink != nil {
		r.sink.Record(models.SessionEvent{
			SessionID: sessionID,
			Type:      models.EventSessionCreated,
			CreatedAt: r.now(),
		})
	}
	r.logger.Info("session created", "session_id", sessionID)
	return nil
}

// Join admit'ит соединение пользователя в сессию.
// Идемпотентен по userId: reconnect обновляет существующую запись
// участника, не создавая дубликат.
func (r *Registry) Join(ctx context.Context, sessionID string, id Identity) (*Subscription, error) {
	s, err := r.session(sessionID)
	if err != nil {
		return nil, err
	}
	var sub *Subscription
	if err := s.call(func() { sub = s.applyJoin(id) }); err != nil {
		return nil, err
	}
	return sub, nil
}

// Leave явно выводит участника из сессии: его локи освобождаются,
// остальные получают user_left.
func (r *Registry) Leave(sessionID, userID string) error {
	s, err := r.session(sessionID)
	if err != nil {
		return err
	}
	return s.enqueue(func() { s.applyLeaveUser(userID, models.ReasonLeave) })
}

// DetachConn сообщает о закрытии транспортного соединения. Участник при
// этом не удаляется: авторитет за liveness у heartbeat-монитора, и
// быстрый reconnect в пределах таймаута не выкидывает пользователя.
func (r *Registry) DetachConn(sessionID, connID string) {
	s, err := r.session(sessionID)
	if err != nil {
		return
	}
	_ = s.enqueue(func() { s.applyDetachConn(connID) })
}

// Heartbeat фиксирует heartbeat соединения; ack уходит отправителю
func (r *Registry) Heartbeat(sessionID, connID string) error {
	s, err := r.session(sessionID)
	if err != nil {
		return err
	}
	return s.enqueue(func() { s.applyHeartbeat(connID) })
}

// UpdateCursor обновляет курсор/выделение участника и рассылает
// cursor_update остальным. Порядок сообщений одного отправителя
// сохраняется (FIFO читающего цикла соединения + FIFO потока операций).
func (r *Registry) UpdateCursor(sessionID, connID string, pos models.CursorPosition, selectedResourceID string) error {
	s, err := r.session(sessionID)
	if err != nil {
		return err
	}
	return s.enqueue(func() { s.applyCursor(connID, pos, selectedResourceID) })
}

// AcquireLock запрашивает эксклюзивный лок. Результат (lock_acquired
// или lock_denied) приходит событием в подписку соединения; запрос
// никогда не ждет чужого release.
func (r *Registry) AcquireLock(sessionID, connID, resourceID string) error {
	s, err := r.session(sessionID)
	if err != nil {
		return err
	}
	return s.enqueue(func() { s.applyAcquire(connID, resourceID) })
}

// ReleaseLock отпускает лок. Release не-держателем отвергается событием
// error(lock_release_rejected).
func (r *Registry) ReleaseLock(sessionID, connID, resourceID string) error {
	s, err := r.session(sessionID)
	if err != nil {
		return err
	}
	return s.enqueue(func() { s.applyRelease(connID, resourceID) })
}

// ForceReleaseLock административно снимает лок от имени держателя.
// Возвращает true, если лок существовал и был снят.
func (r *Registry) ForceReleaseLock(ctx context.Context, sessionID, resourceID string) (bool, error) {
	s, err := r.session(sessionID)
	if err != nil {
		return false, err
	}
	var released bool
	if err := s.call(func() { released = s.applyForceRelease(resourceID, models.ReasonAdmin) }); err != nil {
		return false, err
	}
	return released, nil
}

// Snapshot возвращает текущий pull-снимок сессии. Читается через актор
// сессии - то же состояние, что порождает push-события, поэтому
// расхождение ограничено только частотой опроса.
func (r *Registry) Snapshot(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	s, err := r.session(sessionID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	var snap models.SessionSnapshot
	if err := s.call(func() { snap = s.applySnapshot() }); err != nil {
		return models.SessionSnapshot{}, err
	}
	return snap, nil
}

// Close останавливает все сессии. Используется при graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*session)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		// teardown закрывает каналы соединений из горутины актора;
		// ошибка enqueue означает, что сессия уже мертва.
		_ = s.enqueue(s.teardown)
	}
}

func (r *Registry) session(sessionID string) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) removeSession(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	r.logger.Info("session destroyed", "session_id", sessionID)
}
