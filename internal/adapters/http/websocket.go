package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/classroom/internal/adapters/nats"
	"github.com/samirrijal/classroom/internal/pkg/metrics"
)

// wsMessage is sent by the device over the socket.
type wsMessage struct {
	Action string `json:"action"` // "position" | "retry" | "close"
	natsadapter.FixMessage
}

// WebSocketHandler serves /ws?session=<id>. It relays every gate snapshot
// of the session from NATS and accepts the device's position reports, so a
// browser can run a whole check over one socket. The socket owns the
// session: a disconnect closes it like the "close" action does.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sessionID := c.Query("session")
		log := slog.Default().With("session", sessionID, "remote", c.RemoteAddr().String())
		ctx := context.Background()

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		view, err := deps.Checks.Get(ctx, sessionID)
		if err != nil {
			_ = writeJSON(map[string]string{"error": err.Error()})
			return
		}
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Debug("ws client connected")

		if deps.NATS != nil {
			sub, err := deps.NATS.Subscribe(natsadapter.GateSubject(sessionID), func(msg *nats.Msg) {
				_ = writeJSON(map[string]any{"type": "gate", "gate": json.RawMessage(msg.Data)})
			})
			if err != nil {
				log.Error("ws subscribe", "error", err)
				return
			}
			defer func() { _ = sub.Unsubscribe() }()
		}
		_ = writeJSON(map[string]any{"type": "check", "check": view})

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				// The form went away without saying so; cancel its check.
				if err := deps.Checks.Close(ctx, sessionID); err != nil {
					log.Debug("ws close session", "error", err)
				}
				break
			}
			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "position":
				report, err := m.Report(sessionID)
				if err == nil {
					err = deps.Checks.HandleFix(ctx, report)
				}
				if err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
				}
			case "retry":
				v, started, err := deps.Checks.Retry(ctx, sessionID)
				if err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
					continue
				}
				_ = writeJSON(map[string]any{"type": "check", "started": started, "check": v})
			case "close":
				_ = deps.Checks.Close(ctx, sessionID)
				log.Debug("ws client closed its session")
				return
			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}
		log.Debug("ws client disconnected")
	}
}
