package presence

import "time"

// Значения политик по умолчанию
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultTimeoutMultiplier = 3
	DefaultSweepInterval     = 5 * time.Second
	DefaultCursorStaleWindow = 10 * time.Second
	DefaultMaxLockHold       = 5 * time.Minute

	defaultSendBuffer = 64
	defaultOpBuffer   = 256
)

// Config содержит политики протокола присутствия.
// Все значения конфигурируются снаружи (флаги cmd/server), здесь только дефолты.
type Config struct {
	// HeartbeatInterval ожидаемый интервал heartbeat от клиента
	HeartbeatInterval time.Duration
	// SweepInterval период фонового обхода (эвикция, истечение локов)
	SweepInterval time.Duration
	// CursorStaleWindow окно устаревания курсора. Чисто рендерная политика,
	// намеренно не связана с liveness: замерший курсор не выкидывает
	// пользователя из ростера.
	CursorStaleWindow time.Duration
	// MaxLockHold максимальный срок удержания лока. Защитная граница против
	// клиента, пропавшего без чистого disconnect. 0 отключает.
	MaxLockHold time.Duration
	// TimeoutMultiplier heartbeat timeout = HeartbeatInterval * TimeoutMultiplier.
	// Строго больше 1, чтобы один пропущенный beat не считался дисконнектом.
	TimeoutMultiplier int
	// SendBuffer размер буфера исходящего канала соединения
	SendBuffer int
	// OpBuffer размер буфера потока операций сессии
	OpBuffer int
}

// DefaultConfig возвращает конфигурацию с политиками по умолчанию
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		TimeoutMultiplier: DefaultTimeoutMultiplier,
		SweepInterval:     DefaultSweepInterval,
		CursorStaleWindow: DefaultCursorStaleWindow,
		MaxLockHold:       DefaultMaxLockHold,
		SendBuffer:        defaultSendBuffer,
		OpBuffer:          defaultOpBuffer,
	}
}

// normalize заполняет нулевые поля дефолтами
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.TimeoutMultiplier < 2 {
		c.TimeoutMultiplier = d.TimeoutMultiplier
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.CursorStaleWindow <= 0 {
		c.CursorStaleWindow = d.CursorStaleWindow
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.OpBuffer <= 0 {
		c.OpBuffer = d.OpBuffer
	}
	return c
}

// heartbeatTimeout возвращает порог эвикции участника
func (c Config) heartbeatTimeout() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.TimeoutMultiplier)
}
