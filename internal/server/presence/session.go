package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

// conn представляет одно подписанное push-соединение.
// Исходящие события уходят в буферизованный канал; транспортный слой
// (ws handler) его вычитывает. Канал закрывается только из run-горутины.
type conn struct {
	id      string
	userID  string
	seq     uint64 // порядок подключения, для выбора авторитетного соединения
	events  chan api.Envelope
	dropped int // события, потерянные из-за переполнения буфера
}

// session владеет всем изменяемым состоянием одной сессии.
// Все мутации сериализуются через канал ops и применяются одной
// горутиной (run) - это единственная точка сериализации из спецификации
// протокола. Разные сессии полностью независимы.
type session struct {
	id     string
	cfg    Config
	logger *slog.Logger
	sink   EventSink
	now    func() time.Time
	detach func(sessionID string) // снимает сессию с учета в registry

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Поля ниже принадлежат исключительно run-горутине
	createdAt    time.Time
	participants map[string]*models.Participant
	order        []string // userID в порядке join
	locks        map[string]*models.EditLock
	conns        map[string]*conn
	connSeq      uint64
}

func newSession(id string, cfg Config, logger *slog.Logger, sink EventSink, now func() time.Time, detach func(string)) *session {
	s := &session{
		id:           id,
		cfg:          cfg,
		logger:       logger.With("session_id", id),
		sink:         sink,
		now:          now,
		detach:       detach,
		ops:          make(chan func(), cfg.OpBuffer),
		done:         make(chan struct{}),
		createdAt:    now(),
		participants: make(map[string]*models.Participant),
		locks:        make(map[string]*models.EditLock),
		conns:        make(map[string]*conn),
	}
	return s
}

// run обрабатывает поток операций сессии. Тикер обхода живет в том же
// цикле, поэтому таймауты сериализуются с операциями и не требуют
// блокировок состояния.
func (s *session) run() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// enqueue ставит операцию в сериализованный поток сессии.
// Не блокируется на других участниках: буфер ops рассчитан на всплески,
// при закрытой сессии возвращает ErrSessionNotFound.
func (s *session) enqueue(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionNotFound
	default:
	}
	select {
	case s.ops <- fn:
		return nil
	case <-s.done:
		return ErrSessionNotFound
	}
}

// call ставит операцию и ждет ее применения. Используется операциями,
// которым нужен синхронный результат (join, snapshot, admin release).
func (s *session) call(fn func()) error {
	applied := make(chan struct{})
	if err := s.enqueue(func() {
		fn()
		close(applied)
	}); err != nil {
		return err
	}
	select {
	case <-applied:
		return nil
	case <-s.done:
		return ErrSessionNotFound
	}
}

// close останавливает run-горутину. Каналы соединений закрывает teardown,
// вызываемый изнутри актора; close безопасен к повторным вызовам.
func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// teardown завершает сессию: закрывает соединения и снимает ее с учета.
// Вызывается только из run-горутины.
func (s *session) teardown() {
	for id, c := range s.conns {
		close(c.events)
		delete(s.conns, id)
	}
	if s.detach != nil {
		s.detach(s.id)
	}
	s.journal(models.EventSessionClosed, "", "", "")
	s.close()
}

// --- операции (вызываются только из run-горутины) ---

func (s *session) applyJoin(id Identity) *Subscription {
	now := s.now()

	s.connSeq++
	c := &conn{
		id:     uuid.NewString(),
		userID: id.UserID,
		seq:    s.connSeq,
		events: make(chan api.Envelope, s.cfg.SendBuffer),
	}
	s.conns[c.id] = c

	p, ok := s.participants[id.UserID]
	if !ok {
		// Новый участник. Цвет назначает сервер, детерминированно от userId.
		p = &models.Participant{
			UserID:        id.UserID,
			DisplayName:   id.DisplayName,
			Role:          id.Role,
			Color:         ColorFor(id.UserID),
			JoinedAt:      now,
			LastHeartbeat: now,
		}
		s.participants[id.UserID] = p
		s.order = append(s.order, id.UserID)

		s.broadcast(s.envelope(api.TypeUserJoined, id.UserID, api.UserJoinedPayload{
			DisplayName: p.DisplayName,
			Color:       p.Color,
			Role:        string(p.Role),
		}), id.UserID)
		s.journal(models.EventUserJoined, id.UserID, "", "")
		s.logger.Info("participant joined", "user_id", id.UserID, "role", id.Role)
	} else {
		// Повторный join того же userId - reconnect. Запись обновляется,
		// дубликат не создается, цвет остается прежним. Авторитетным
		// становится самое свежее соединение.
		p.DisplayName = id.DisplayName
		p.Role = id.Role
		p.LastHeartbeat = now
		s.logger.Debug("participant reconnected", "user_id", id.UserID)
	}
	p.ConnectionID = c.id

	return &Subscription{
		ConnID:      c.id,
		Events:      c.events,
		Participant: *p,
	}
}

// applyLeaveUser убирает участника из сессии, освобождая его локи.
// reason: ReasonLeave для явного выхода, ReasonTimeout для эвикции.
func (s *session) applyLeaveUser(userID, reason string) {
	if _, ok := s.participants[userID]; !ok {
		return
	}

	// Принудительно снимаем локи уходящего до user_left, чтобы клиенты
	// не видели лок без держателя в ростере.
	for resourceID, l := range s.locks {
		if l.HolderID == userID {
			s.applyForceRelease(resourceID, reason)
		}
	}

	delete(s.participants, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	// user_left получают все, включая соединения самого уходящего:
	// эвиктнутый клиент должен узнать, что сервер его больше не числит.
	s.broadcast(s.envelope(api.TypeUserLeft, userID, api.UserLeftPayload{Reason: reason}), "")
	s.journal(models.EventUserLeft, userID, "", reason)
	s.logger.Info("participant left", "user_id", userID, "reason", reason)

	if len(s.participants) == 0 {
		// Последний участник ушел и локов не осталось - сессия уничтожается.
		// Последующий join получит SessionNotFound (устаревшая ссылка).
		s.teardown()
	}
}

// applyDetachConn обрабатывает закрытие транспортного соединения.
// Потеря соединения - не выход: участник остается в ростере и будет
// эвиктнут heartbeat-таймаутом, если не переподключится вовремя.
func (s *session) applyDetachConn(connID string) {
	c, ok := s.conns[connID]
	if !ok {
		return
	}
	delete(s.conns, connID)
	close(c.events)

	p, ok := s.participants[c.userID]
	if !ok || p.ConnectionID != connID {
		return
	}
	// Умерло авторитетное соединение: авторитет переходит к самому
	// свежему из оставшихся соединений этого пользователя, если есть.
	var newest *conn
	for _, other := range s.conns {
		if other.userID == c.userID && (newest == nil || other.seq > newest.seq) {
			newest = other
		}
	}
	if newest != nil {
		p.ConnectionID = newest.id
	}
}

func (s *session) applyHeartbeat(connID string) {
	c, p := s.sender(connID)
	if c == nil {
		return
	}
	if p == nil {
		s.rejectNotParticipant(c, api.TypeHeartbeat)
		return
	}
	p.LastHeartbeat = s.now()
	s.sendTo(c, s.envelope(api.TypeHeartbeatAck, c.userID, nil))
}

func (s *session) applyCursor(connID string, pos models.CursorPosition, selectedResourceID string) {
	c, p := s.sender(connID)
	if c == nil {
		return
	}
	if p == nil {
		s.rejectNotParticipant(c, api.TypeCursorUpdate)
		return
	}

	// Позиция заменяется целиком, без помержевого слияния
	cursor := pos
	p.Cursor = &cursor
	p.CursorUpdatedAt = s.now()
	p.SelectedResourceID = selectedResourceID

	// Фан-аут всем, кроме отправителя: свое же обновление клиенту не эхоится
	s.broadcast(s.envelope(api.TypeCursorUpdate, c.userID, api.CursorUpdatePayload{
		Position: api.Position{
			X:              pos.X,
			Y:              pos.Y,
			ViewportWidth:  pos.ViewportWidth,
			ViewportHeight: pos.ViewportHeight,
		},
		SelectedResourceID: selectedResourceID,
	}), c.userID)
}

func (s *session) applyAcquire(connID, resourceID string) {
	c, p := s.sender(connID)
	if c == nil {
		return
	}
	if p == nil {
		s.rejectNotParticipant(c, api.TypeLockAcquire)
		return
	}

	l, held := s.locks[resourceID]
	switch {
	case !held:
		// Unlocked -> Locked(holder). Побеждает тот, чей запрос применен
		// первым: других гарантий честности протокол не дает.
		l = &models.EditLock{
			ResourceID: resourceID,
			HolderID:   c.userID,
			AcquiredAt: s.now(),
		}
		s.locks[resourceID] = l
		s.broadcast(s.envelope(api.TypeLockAcquired, c.userID, api.LockAcquiredPayload{
			ResourceID: resourceID,
			HolderID:   c.userID,
			AcquiredAt: l.AcquiredAt,
		}), "")
		s.journal(models.EventLockAcquired, c.userID, resourceID, "")
		s.logger.Debug("lock acquired", "user_id", c.userID, "resource_id", resourceID)

	case l.HolderID == c.userID:
		// Повторный acquire своего лока - идемпотентный no-op Granted
		s.sendTo(c, s.envelope(api.TypeLockAcquired, c.userID, api.LockAcquiredPayload{
			ResourceID: resourceID,
			HolderID:   c.userID,
			AcquiredAt: l.AcquiredAt,
		}))

	default:
		// Denied с текущим держателем, чтобы клиент показал кто держит
		s.sendTo(c, s.envelope(api.TypeLockDenied, c.userID, api.LockDeniedPayload{
			ResourceID:    resourceID,
			CurrentHolder: l.HolderID,
		}))
	}
}

func (s *session) applyRelease(connID, resourceID string) {
	c, p := s.sender(connID)
	if c == nil {
		return
	}
	if p == nil {
		s.rejectNotParticipant(c, api.TypeLockRelease)
		return
	}

	l, held := s.locks[resourceID]
	if !held || l.HolderID != c.userID {
		// Release чужого или несуществующего лока - Rejected, не молчаливый
		// no-op: молчание прятало бы баг вызывающего.
		msg := "lock is not held"
		if held {
			msg = "lock is held by " + l.HolderID
		}
		s.sendTo(c, s.envelope(api.TypeError, c.userID, api.ErrorPayload{
			Code:    "lock_release_rejected",
			Message: msg,
		}))
		s.logger.Debug("lock release rejected", "user_id", c.userID, "resource_id", resourceID)
		return
	}

	delete(s.locks, resourceID)
	s.broadcast(s.envelope(api.TypeLockReleased, c.userID, api.LockReleasedPayload{
		ResourceID: resourceID,
		HolderID:   c.userID,
		Voluntary:  true,
		Reason:     models.ReasonReleased,
	}), "")
	s.journal(models.EventLockReleased, c.userID, resourceID, models.ReasonReleased)
	s.logger.Debug("lock released", "user_id", c.userID, "resource_id", resourceID)
}

// applyForceRelease снимает лок без участия держателя (эвикция, выход,
// истечение MaxLockHold, админ). Событие отличимо от добровольного
// release: voluntary=false и конкретная причина.
func (s *session) applyForceRelease(resourceID, reason string) bool {
	l, held := s.locks[resourceID]
	if !held {
		return false
	}
	delete(s.locks, resourceID)
	s.broadcast(s.envelope(api.TypeLockReleased, l.HolderID, api.LockReleasedPayload{
		ResourceID: resourceID,
		HolderID:   l.HolderID,
		Voluntary:  false,
		Reason:     reason,
	}), "")
	s.journal(models.EventLockReleased, l.HolderID, resourceID, reason)
	s.logger.Info("lock force-released", "holder_id", l.HolderID, "resource_id", resourceID, "reason", reason)
	return true
}

// applySnapshot строит снимок из того же состояния, что порождает push-события,
// поэтому pull и push не могут разойтись дольше, чем на интервал опроса.
func (s *session) applySnapshot() models.SessionSnapshot {
	now := s.now()
	snap := models.SessionSnapshot{
		SessionID:    s.id,
		TakenAt:      now,
		Participants: make([]models.Participant, 0, len(s.order)),
		Locks:        make([]models.EditLock, 0, len(s.locks)),
	}
	for _, userID := range s.order {
		p := *s.participants[userID]
		// Устаревание курсора вычисляется здесь, в момент отдачи снимка.
		// Участник при этом остается в списке: staleness - рендерная
		// политика, не liveness.
		if p.Cursor != nil && models.CursorStale(now, p.CursorUpdatedAt, s.cfg.CursorStaleWindow) {
			p.Cursor = nil
		}
		snap.Participants = append(snap.Participants, p)
	}
	for _, l := range s.locks {
		snap.Locks = append(snap.Locks, *l)
	}
	sort.Slice(snap.Locks, func(i, j int) bool {
		return snap.Locks[i].ResourceID < snap.Locks[j].ResourceID
	})
	return snap
}

// sweep - фоновый обход: эвикция замолчавших участников и истечение
// локов, удерживаемых дольше MaxLockHold. Единственная точка, где
// liveness приводит к удалению участника.
func (s *session) sweep() {
	now := s.now()
	timeout := s.cfg.heartbeatTimeout()

	var expired []string
	for _, userID := range s.order {
		p := s.participants[userID]
		if now.Sub(p.LastHeartbeat) > timeout {
			expired = append(expired, userID)
		}
	}
	for _, userID := range expired {
		s.logger.Warn("participant heartbeat timeout", "user_id", userID)
		s.applyLeaveUser(userID, models.ReasonTimeout)
	}

	if s.cfg.MaxLockHold > 0 {
		var stale []string
		for resourceID, l := range s.locks {
			if now.Sub(l.AcquiredAt) > s.cfg.MaxLockHold {
				stale = append(stale, resourceID)
			}
		}
		for _, resourceID := range stale {
			s.applyForceRelease(resourceID, models.ReasonExpired)
		}
	}
}

// --- вспомогательные ---

// sender возвращает соединение и участника для connID.
// (nil, nil) - неизвестное соединение (уже отцеплено, сообщение дропается);
// (conn, nil) - соединение живо, но участник эвиктнут: NotAParticipant.
func (s *session) sender(connID string) (*conn, *models.Participant) {
	c, ok := s.conns[connID]
	if !ok {
		return nil, nil
	}
	return c, s.participants[c.userID]
}

// rejectNotParticipant отвечает ошибкой на операцию от соединения,
// чей участник больше не состоит в сессии. Неявного join здесь нет
// намеренно: это закрывало бы спуфинг через устаревшие соединения.
func (s *session) rejectNotParticipant(c *conn, msgType string) {
	s.logger.Warn("operation from non-participant", "user_id", c.userID, "type", msgType)
	s.sendTo(c, s.envelope(api.TypeError, c.userID, api.ErrorPayload{
		Code:    "not_a_participant",
		Message: "user is not a participant of the session, re-join required",
	}))
}

func (s *session) envelope(msgType, userID string, payload any) api.Envelope {
	env, err := api.NewEnvelope(msgType, s.id, userID, payload, s.now())
	if err != nil {
		// Payload - собственные структуры пакета, сериализация не падает
		s.logger.Error("failed to build envelope", "type", msgType, "error", err)
	}
	return env
}

// broadcast рассылает событие всем соединениям сессии, кроме соединений
// exceptUserID (пустая строка - без исключений).
func (s *session) broadcast(env api.Envelope, exceptUserID string) {
	for _, c := range s.conns {
		if exceptUserID != "" && c.userID == exceptUserID {
			continue
		}
		s.sendTo(c, env)
	}
}

// sendTo кладет событие в канал соединения без блокировки.
// Медленный потребитель теряет события, а не тормозит сессию; pull-снимок
// дает ему способ догнать состояние.
func (s *session) sendTo(c *conn, env api.Envelope) {
	select {
	case c.events <- env:
	default:
		c.dropped++
		if c.dropped == 1 || c.dropped%100 == 0 {
			s.logger.Warn("slow consumer, dropping events",
				"conn_id", c.id, "user_id", c.userID, "dropped", c.dropped)
		}
	}
}

func (s *session) journal(t models.EventType, userID, resourceID, detail string) {
	if s.sink == nil {
		return
	}
	s.sink.Record(models.SessionEvent{
		SessionID:  s.id,
		Type:       t,
		UserID:     userID,
		ResourceID: resourceID,
		Detail:     detail,
		CreatedAt:  s.now(),
	})
}
