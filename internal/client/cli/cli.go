package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/iudanet/boardsync/internal/client/api"
	"github.com/iudanet/boardsync/internal/client/storage"
)

// Cli исполняет команды boardsync-cli.
// Вывод идет в out, чтобы тесты могли его перехватить.
type Cli struct {
	out       io.Writer
	authStore storage.AuthStorage
	snapStore storage.SnapshotStorage
}

// New создает CLI поверх клиентского хранилища
func New(out io.Writer, authStore storage.AuthStorage, snapStore storage.SnapshotStorage) *Cli {
	return &Cli{
		out:       out,
		authStore: authStore,
		snapStore: snapStore,
	}
}

// Run выполняет команду с аргументами
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx, args)
	case "snapshot":
		return c.runSnapshot(ctx, args)
	case "history":
		return c.runHistory(ctx, args)
	case "watch":
		return c.runWatch(ctx, args)
	case "lock":
		return c.runLock(ctx, args)
	case "release":
		return c.runRelease(ctx, args)
	case "force-release":
		return c.runForceRelease(ctx, args)
	default:
		c.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// PrintUsage печатает справку по командам
func (c *Cli) PrintUsage() {
	fmt.Fprintln(c.out, `boardsync-cli - collaborative session presence client

Usage:
  boardsync-cli [flags] <command> [arguments]

Commands:
  login <server-url> <token>          store server connection
  logout                              forget stored connection
  status [session-id]                 show connection and cached session state
  snapshot <session-id>               pull full session snapshot
  history <session-id> [limit]        show session event journal
  watch <session-id>                  join session and print live events
  lock <session-id> <resource-id>     acquire an edit lock
  release <session-id> <resource-id>  release an edit lock
  force-release <session-id> <resource-id>
                                      admin: force-release someone's lock

Flags:
  -db       path to local cache database
  -version  show version information`)
}

// client собирает API клиент из сохраненного подключения
func (c *Cli) client(ctx context.Context) (*api.Client, *storage.AuthData, error) {
	auth, err := c.authStore.GetAuth(ctx)
	if err != nil {
		if err == storage.ErrAuthNotFound {
			return nil, nil, fmt.Errorf("not logged in, run 'boardsync-cli login' first")
		}
		return nil, nil, fmt.Errorf("failed to read stored connection: %w", err)
	}
	return api.NewClient(auth.ServerURL, auth.Token), auth, nil
}
