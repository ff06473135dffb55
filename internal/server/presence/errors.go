package presence

import "errors"

// Протокольные ошибки. Denied/Rejected для локов ошибками не являются -
// это нормальные ответы, они приходят клиенту событиями lock_denied /
// error(lock_release_rejected).
var (
	// ErrSessionNotFound операция ссылается на несуществующую или истекшую сессию.
	// Сессия никогда не создается неявно, чтобы не маскировать устаревшие ссылки.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists сессия с таким id уже активна
	ErrSessionExists = errors.New("session already exists")

	// ErrNotAParticipant мутирующая операция от userId, не состоящего в сессии
	ErrNotAParticipant = errors.New("not a participant of the session")

	// ErrRegistryClosed registry остановлен
	ErrRegistryClosed = errors.New("registry is closed")
)
