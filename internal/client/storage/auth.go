package storage

import (
	"context"
)

// AuthStorage определяет интерфейс хранения данных подключения на клиенте.
// Токен выдает внешний identity-слой; клиент его только хранит и
// подставляет в запросы.
type AuthStorage interface {
	// SaveAuth сохраняет данные подключения
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth возвращает сохраненные данные подключения.
	// Returns ErrAuthNotFound if no auth data exists.
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth удаляет данные подключения (logout)
	DeleteAuth(ctx context.Context) error
}

// AuthData представляет сохраненное подключение к серверу
type AuthData struct {
	ServerURL   string `json:"server_url"`
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	ExpiresAt   int64  `json:"expires_at"` // unix seconds, 0 если токен без exp
}
