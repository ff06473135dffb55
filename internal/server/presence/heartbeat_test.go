package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

func TestHeartbeatAck(t *testing.T) {
	r, _ := newTestRegistry(t, DefaultConfig())
	require.NoError(t, r.CreateSession("s1"))

	subA := join(t, r, "s1", "alice", "Alice", models.RoleEditor)
	require.NoError(t, r.Heartbeat("s1", subA.ConnID))

	env := next(t, subA)
	require.Equal(t, api.TypeHeartbeatAck, env.Type)
	assert.Equal(t, "alice", env.UserID)
}

func TestHeartbeatTimeoutEvictsAndReleasesLocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Second
	cfg.TimeoutMultiplier = 3 // timeout = 30s
	r, clk := newTestRegistry(t, cfg)
	require.NoError(t, r.CreateSession("s1"))

	subA := join(t, r, "s1", "alice", "Alice", models.RoleEditor)
	subB := join(t, r, "s1", "bob", "Bob", models.RoleEditor)
	next(t, subA) // user_joined bob

	require.NoError(t, r.AcquireLock("s1", subA.ConnID, "node-1"))
	next(t, subA)
	next(t, subB)

	// Один пропущенный beat дисконнектом не считается
	clk.Advance(15 * time.Second)
	require.NoError(t, r.Heartbeat("s1", subB.ConnID))
	next(t, subB) // ack
	forceSweep(t, r, "s1")

	snap, err := r.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 2)

	// Алиса молчит дольше interval*multiplier - эвикция.
	// Сценарий 2: ее лок снимается с voluntary=false, затем user_left.
	clk.Advance(20 * time.Second) // 35s тишины у Алисы, у Боба 20s
	require.NoError(t, r.Heartbeat("s1", subB.ConnID))
	next(t, subB) // ack
	forceSweep(t, r, "s1")

	env := next(t, subB)
	require.Equal(t, api.TypeLockReleased, env.Type)
	payload, err := env.Decode()
	require.NoError(t, err)
	released := payload.(*api.LockReleasedPayload)
	assert.False(t, released.Voluntary)
	assert.Equal(t, models.ReasonTimeout, released.Reason)
	assert.Equal(t, "alice", released.HolderID)

	env = next(t, subB)
	require.Equal(t, api.TypeUserLeft, env.Type)
	assert.Equal(t, "alice", env.UserID)
	payload, err = env.Decode()
	require.NoError(t, err)
	assert.Equal(t, models.ReasonTimeout, payload.(*api.UserLeftPayload).Reason)

	snap, err = r.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "bob", snap.Participants[0].UserID)
	assert.Empty(t, snap.Locks)
}

func TestEvictedUserGetsUserLeftOnOwnConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Second
	cfg.TimeoutMultiplier = 2
	r, clk := newTestRegistry(t, cfg)
	require.NoError(t, r.CreateSession("s1"))

	subA := join(t, r, "s1", "alice", "Alice", models.RoleEditor)
	subB := join(t, r, "s1", "bob", "Bob", models.RoleEditor)
	next(t, subA)

	clk.Advance(25 * time.Second)
	require.NoError(t, r.Heartbeat("s1", subB.ConnID))
	next(t, subB)
	forceSweep(t, r, "s1")

	// Эвиктнутый узнает о своей эвикции по своему же соединению
	env := next(t, subA)
	require.Equal(t, api.TypeUserLeft, env.Type)
	assert.Equal(t, "alice", env.UserID)
}

func TestCursorStalenessIndependentOfLiveness(t *testing.T) {
	// Сценарий 3: курсор устарел, но участник жив и остается в ростере
	cfg := DefaultConfig()
	cfg.CursorStaleWindow = 10 * time.Second
	cfg.HeartbeatInterval = 30 * time.Second
	r, clk := newTestRegistry(t, cfg)
	require.NoError(t, r.CreateSession("s1"))

	subA := join(t, r, "s1", "alice", "Alice", models.RoleEditor)
	subB := join(t, r, "s1", "bob", "Bob", models.RoleEditor)
	next(t, subA)

	require.NoError(t, r.UpdateCursor("s1", subA.ConnID, models.CursorPosition{X: 1, Y: 1}, ""))
	next(t, subB)
	clk.Advance(3 * time.Second)
	require.NoError(t, r.UpdateCursor("s1", subA.ConnID, models.CursorPosition{X: 2, Y: 2}, ""))
	next(t, subB)

	// t=3s: курсор свежий
	snap, err := r.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, snap.Participants[0].Cursor)
	assert.Equal(t, 2.0, snap.Participants[0].Cursor.X)

	// t=14s: окно (10s) истекло, heartbeat продолжает приходить
	clk.Advance(11 * time.Second)
	require.NoError(t, r.Heartbeat("s1", subA.ConnID))
	next(t, subA)
	forceSweep(t, r, "s1")

	snap, err = r.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 2, "stale cursor must not evict the participant")
	assert.Equal(t, "alice", snap.Participants[0].UserID)
	assert.Nil(t, snap.Participants[0].Cursor, "stale cursor excluded from snapshot")
}

func TestHeartbeatRefreshOnReconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Second
	cfg.TimeoutMultiplier = 2
	r, clk := newTestRegistry(t, cfg)
	require.NoError(t, r.CreateSession("s1"))

	subA1 := join(t, r, "s1", "alice", "Alice", models.RoleEditor)

	// Молчание почти до таймаута (20s), затем reconnect: join обновляет
	// last-seen, эвикции нет.
	clk.Advance(19 * time.Second)
	r.DetachConn("s1", subA1.ConnID)
	join(t, r, "s1", "alice", "Alice", models.RoleEditor)

	clk.Advance(5 * time.Second)
	forceSweep(t, r, "s1")

	snap, err := r.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)
}
