package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

// identityKey ключ для хранения identity в контексте запроса
const identityKey contextKey = "identity"

// Identity представляет проверенную личность из identity-токена.
// Кладется в контекст auth-middleware'ом.
type Identity struct {
	UserID      string
	DisplayName string
	Role        string
	Admin       bool
}

// WithIdentity кладет identity в контекст запроса
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity извлекает identity из контекста запроса
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
