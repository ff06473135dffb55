package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/pkg/api"
)

// runSnapshot забирает pull-снимок сессии и кэширует его для offline status
func (c *Cli) runSnapshot(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: snapshot <session-id>")
	}
	sessionID := args[0]

	client, _, err := c.client(ctx)
	if err != nil {
		return err
	}

	snap, err := client.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}

	c.printSnapshot(snap)

	// Кэш не критичен: снимок уже показан
	cached := &storage.CachedSnapshot{
		FetchedAt: time.Now().Unix(),
		Snapshot:  *snap,
	}
	if err := c.snapStore.SaveSnapshot(ctx, cached); err != nil {
		fmt.Fprintf(c.out, "Warning: failed to cache snapshot: %v\n", err)
	}
	return nil
}

// runHistory печатает журнал событий сессии
func (c *Cli) runHistory(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: history <session-id> [limit]")
	}
	sessionID := args[0]

	limit := 0
	if len(args) == 2 {
		var err error
		limit, err = strconv.Atoi(args[1])
		if err != nil || limit < 0 {
			return fmt.Errorf("invalid limit: %s", args[1])
		}
	}

	client, _, err := c.client(ctx)
	if err != nil {
		return err
	}

	hist, err := client.History(ctx, sessionID, limit)
	if err != nil {
		return err
	}

	if len(hist.Events) == 0 {
		fmt.Fprintf(c.out, "No events recorded for session %s\n", sessionID)
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tUSER\tRESOURCE\tDETAIL")
	for _, ev := range hist.Events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Format(time.RFC3339), ev.Type, ev.UserID, ev.ResourceID, ev.Detail)
	}
	return w.Flush()
}

// runForceRelease административно снимает чужой лок
func (c *Cli) runForceRelease(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: force-release <session-id> <resource-id>")
	}

	client, _, err := c.client(ctx)
	if err != nil {
		return err
	}

	resp, err := client.ForceRelease(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	if resp.Released {
		fmt.Fprintf(c.out, "Lock on %s released\n", resp.ResourceID)
	} else {
		fmt.Fprintf(c.out, "Resource %s was not locked\n", resp.ResourceID)
	}
	return nil
}

// printSnapshot рендерит снимок таблицами участников и локов
func (c *Cli) printSnapshot(snap *api.SnapshotResponse) {
	fmt.Fprintf(c.out, "Session %s (%d participant(s), %d lock(s))\n",
		snap.SessionID, len(snap.Participants), len(snap.Locks))

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tNAME\tCOLOR\tROLE\tCURSOR\tLAST HEARTBEAT")
	for _, p := range snap.Participants {
		cursor := "-"
		if p.Cursor != nil {
			cursor = fmt.Sprintf("%.0f,%.0f", p.Cursor.X, p.Cursor.Y)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.UserID, p.DisplayName, p.Color, p.Role, cursor,
			p.LastHeartbeat.Format(time.RFC3339))
	}
	_ = w.Flush()

	if len(snap.Locks) == 0 {
		return
	}
	w = tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tHELD BY\tSINCE")
	for _, l := range snap.Locks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.ResourceID, l.HolderID, l.AcquiredAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
