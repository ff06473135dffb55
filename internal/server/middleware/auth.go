package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/boardsync/internal/server/handlers"
	"github.com/iudanet/boardsync/internal/server/jwt"
)

// Auth создает middleware для проверки identity-токена.
// Токен ожидается в заголовке Authorization ("Bearer <token>") или,
// для websocket-соединений из браузера, в query-параметре token
// (браузерный WebSocket API не умеет ставить заголовки).
func Auth(logger *slog.Logger, secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				logger.Warn("missing identity token", "path", r.URL.Path)
				http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			claims, err := jwt.Validate(secret, tokenString)
			if err != nil {
				logger.Warn("invalid identity token", "error", err)
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			ctx := handlers.WithIdentity(r.Context(), handlers.Identity{
				UserID:      claims.UserID,
				DisplayName: claims.DisplayName,
				Role:        claims.Role,
				Admin:       claims.Admin,
			})

			logger.Debug("user authenticated", "user_id", claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
