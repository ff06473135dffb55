package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/boardsync/internal/client/storage"
)

// tokenClaims - интересные клиенту поля identity-токена
type tokenClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// runLogin сохраняет подключение: server URL + токен.
// Токен выдает внешний identity-слой; здесь он только разбирается
// (без проверки подписи - секрет знает сервер) ради user_id и срока.
func (c *Cli) runLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: login <server-url> <token>")
	}
	serverURL, token := args[0], args[1]

	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("token does not look like a JWT: %w", err)
	}
	if claims.UserID == "" {
		return fmt.Errorf("token has no user_id claim")
	}

	auth := &storage.AuthData{
		ServerURL:   serverURL,
		Token:       token,
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
	}
	if claims.ExpiresAt != nil {
		auth.ExpiresAt = claims.ExpiresAt.Unix()
	}

	if err := c.authStore.SaveAuth(ctx, auth); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	fmt.Fprintf(c.out, "Logged in to %s as %s (%s)\n", serverURL, claims.UserID, claims.DisplayName)
	if auth.ExpiresAt > 0 {
		fmt.Fprintf(c.out, "Token expires: %s\n", time.Unix(auth.ExpiresAt, 0).Format(time.RFC3339))
	}
	return nil
}

// runLogout забывает сохраненное подключение
func (c *Cli) runLogout(ctx context.Context) error {
	if err := c.authStore.DeleteAuth(ctx); err != nil {
		if err == storage.ErrAuthNotFound {
			fmt.Fprintln(c.out, "Not logged in")
			return nil
		}
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	fmt.Fprintln(c.out, "Logged out")
	return nil
}
