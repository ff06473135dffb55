package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/boardsync/pkg/api"
)

// Интервал heartbeat должен совпадать с серверным -heartbeat-interval,
// иначе сервер эвиктит клиента по timeout.
const heartbeatInterval = 30 * time.Second

const wsWriteWait = 10 * time.Second

// runWatch подключается к push-каналу сессии и печатает события,
// отвечая heartbeat по расписанию. Завершается по Ctrl-C.
func (c *Cli) runWatch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: watch <session-id>")
	}
	sessionID := args[0]

	client, auth, err := c.client(ctx)
	if err != nil {
		return err
	}

	ws, err := client.DialSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Fprintf(c.out, "Watching session %s as %s (Ctrl-C to stop)\n", sessionID, auth.UserID)

	events := make(chan api.Envelope)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			var env api.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				readErr <- err
				return
			}
			events <- env
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	// Первый heartbeat сразу: join уже состоялся на сервере,
	// но таймер эвикции пошел.
	if err := c.send(ws, api.TypeHeartbeat, sessionID, auth.UserID, nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			// Явный выход: сервер разошлет user_left и снимет наши локи
			_ = c.send(ws, api.TypeLeave, sessionID, auth.UserID, nil)
			fmt.Fprintln(c.out, "Left session")
			return nil

		case <-ticker.C:
			if err := c.send(ws, api.TypeHeartbeat, sessionID, auth.UserID, nil); err != nil {
				return err
			}

		case env, ok := <-events:
			if !ok {
				err := <-readErr
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Fprintln(c.out, "Server closed the session")
					return nil
				}
				return fmt.Errorf("connection lost: %w", err)
			}
			c.printEvent(env)
		}
	}
}

// runLock берет edit lock на ресурс. Лок живет, пока участник жив:
// после выхода команды его удержит heartbeat watch-сессии или,
// без нее, сервер снимет лок по heartbeat timeout.
func (c *Cli) runLock(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: lock <session-id> <resource-id>")
	}
	sessionID, resourceID := args[0], args[1]

	return c.lockOp(ctx, sessionID, resourceID, api.TypeLockAcquire,
		func(env api.Envelope, payload any) (bool, error) {
			switch env.Type {
			case api.TypeLockAcquired:
				p := payload.(*api.LockAcquiredPayload)
				if p.ResourceID != resourceID {
					return false, nil
				}
				fmt.Fprintf(c.out, "Lock on %s acquired\n", resourceID)
				return true, nil
			case api.TypeLockDenied:
				p := payload.(*api.LockDeniedPayload)
				if p.ResourceID != resourceID {
					return false, nil
				}
				return true, fmt.Errorf("lock denied: %s is held by %s", resourceID, p.CurrentHolder)
			}
			return false, nil
		})
}

// runRelease снимает свой edit lock
func (c *Cli) runRelease(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: release <session-id> <resource-id>")
	}
	sessionID, resourceID := args[0], args[1]

	return c.lockOp(ctx, sessionID, resourceID, api.TypeLockRelease,
		func(env api.Envelope, payload any) (bool, error) {
			switch env.Type {
			case api.TypeLockReleased:
				p := payload.(*api.LockReleasedPayload)
				if p.ResourceID != resourceID {
					return false, nil
				}
				fmt.Fprintf(c.out, "Lock on %s released\n", resourceID)
				return true, nil
			case api.TypeError:
				p := payload.(*api.ErrorPayload)
				return true, fmt.Errorf("release rejected: %s", p.Message)
			}
			return false, nil
		})
}

// lockOp выполняет одиночную lock-операцию: подключиться, отправить,
// дождаться исхода. done возвращает (завершено, ошибка исхода).
func (c *Cli) lockOp(ctx context.Context, sessionID, resourceID, msgType string,
	done func(env api.Envelope, payload any) (bool, error)) error {

	client, auth, err := c.client(ctx)
	if err != nil {
		return err
	}

	ws, err := client.DialSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer ws.Close()

	var req any = api.LockAcquirePayload{ResourceID: resourceID}
	if msgType == api.TypeLockRelease {
		req = api.LockReleasePayload{ResourceID: resourceID}
	}
	if err := c.send(ws, msgType, sessionID, auth.UserID, req); err != nil {
		return err
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_ = ws.SetReadDeadline(deadline)
		var env api.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return fmt.Errorf("connection lost waiting for lock outcome: %w", err)
		}

		payload, err := env.Decode()
		if err != nil {
			continue
		}
		if env.Type == api.TypeError {
			p := payload.(*api.ErrorPayload)
			if p.Code == "session_not_found" || p.Code == "not_a_participant" {
				return errors.New(p.Message)
			}
		}
		if finished, opErr := done(env, payload); finished {
			return opErr
		}
	}
	return fmt.Errorf("timed out waiting for lock outcome on %s", resourceID)
}

// send пишет конверт в сокет
func (c *Cli) send(ws *websocket.Conn, msgType, sessionID, userID string, payload any) error {
	env, err := api.NewEnvelope(msgType, sessionID, userID, payload, time.Now())
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", msgType, err)
	}
	return nil
}

// printEvent печатает событие push-канала в человекочитаемом виде
func (c *Cli) printEvent(env api.Envelope) {
	ts := env.Timestamp.Format("15:04:05")
	payload, err := env.Decode()
	if err != nil {
		fmt.Fprintf(c.out, "[%s] %s (undecodable: %v)\n", ts, env.Type, err)
		return
	}

	switch env.Type {
	case api.TypeUserJoined:
		p := payload.(*api.UserJoinedPayload)
		fmt.Fprintf(c.out, "[%s] %s joined (%s, color %s)\n", ts, env.UserID, p.DisplayName, p.Color)
	case api.TypeUserLeft:
		p := payload.(*api.UserLeftPayload)
		fmt.Fprintf(c.out, "[%s] %s left (%s)\n", ts, env.UserID, p.Reason)
	case api.TypeCursorUpdate:
		p := payload.(*api.CursorUpdatePayload)
		fmt.Fprintf(c.out, "[%s] %s cursor %.0f,%.0f\n", ts, env.UserID, p.Position.X, p.Position.Y)
	case api.TypeLockAcquired:
		p := payload.(*api.LockAcquiredPayload)
		fmt.Fprintf(c.out, "[%s] %s locked %s\n", ts, p.HolderID, p.ResourceID)
	case api.TypeLockReleased:
		p := payload.(*api.LockReleasedPayload)
		if p.Voluntary {
			fmt.Fprintf(c.out, "[%s] %s released %s\n", ts, p.HolderID, p.ResourceID)
		} else {
			fmt.Fprintf(c.out, "[%s] lock on %s released (%s, was held by %s)\n", ts, p.ResourceID, p.Reason, p.HolderID)
		}
	case api.TypeLockDenied:
		p := payload.(*api.LockDeniedPayload)
		fmt.Fprintf(c.out, "[%s] lock on %s denied, held by %s\n", ts, p.ResourceID, p.CurrentHolder)
	case api.TypeHeartbeatAck:
		// Слишком шумно для вывода
	case api.TypeError:
		p := payload.(*api.ErrorPayload)
		fmt.Fprintf(c.out, "[%s] server error: %s %s\n", ts, p.Code, p.Message)
	default:
		fmt.Fprintf(c.out, "[%s] %s from %s\n", ts, env.Type, env.UserID)
	}
}
