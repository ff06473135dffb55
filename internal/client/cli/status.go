package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/boardsync/internal/client/storage"
)

// runStatus показывает сохраненное подключение и, если задан session id,
// последний закэшированный снимок. Работает полностью offline.
func (c *Cli) runStatus(ctx context.Context, args []string) error {
	auth, err := c.authStore.GetAuth(ctx)
	if err != nil {
		if err == storage.ErrAuthNotFound {
			fmt.Fprintln(c.out, "Status: not logged in")
			fmt.Fprintln(c.out, "Run 'boardsync-cli login <server-url> <token>' first.")
			return nil
		}
		return fmt.Errorf("failed to read stored connection: %w", err)
	}

	fmt.Fprintln(c.out, "Status: logged in")
	fmt.Fprintf(c.out, "Server:  %s\n", auth.ServerURL)
	fmt.Fprintf(c.out, "User:    %s (%s)\n", auth.UserID, auth.DisplayName)

	if auth.ExpiresAt > 0 {
		expiresAt := time.Unix(auth.ExpiresAt, 0)
		if time.Now().After(expiresAt) {
			fmt.Fprintf(c.out, "Token:   expired at %s, login again\n", expiresAt.Format(time.RFC3339))
		} else {
			fmt.Fprintf(c.out, "Token:   valid until %s\n", expiresAt.Format(time.RFC3339))
		}
	}

	if len(args) == 0 {
		return nil
	}

	sessionID := args[0]
	cached, err := c.snapStore.GetSnapshot(ctx, sessionID)
	if err != nil {
		if err == storage.ErrSnapshotNotFound {
			fmt.Fprintf(c.out, "\nNo cached snapshot for session %s\n", sessionID)
			return nil
		}
		return fmt.Errorf("failed to read cached snapshot: %w", err)
	}

	fmt.Fprintf(c.out, "\nCached snapshot of %s (fetched %s):\n",
		sessionID, time.Unix(cached.FetchedAt, 0).Format(time.RFC3339))
	c.printSnapshot(&cached.Snapshot)
	return nil
}
