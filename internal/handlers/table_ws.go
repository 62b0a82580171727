// internal/handlers/table_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/scoretracker/internal/game"
	"github.com/jason-s-yu/scoretracker/internal/middleware"
)

const wsSubprotocol = "table"

// TableWSHandler streams a table's events to the client and accepts intents
// on the same connection. The first frame is always a state_sync.
func TableWSHandler(s *TableServer, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tableID, err := tableIDFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		g := s.Table(r.Context(), tableID)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{wsSubprotocol},
			OriginPatterns: originPatterns,
		})
		if err != nil {
			s.logger.Warnf("WebSocket accept error for table %s: %v", tableID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != wsSubprotocol {
			c.Close(BadSubprotocolError, "Client must use the 'table' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, tableID.String())

		hub := s.hubs.get(tableID)
		var sub *subscriber
		g.Attach(func(ev game.GameEvent) {
			sub = hub.subscribe()
			if data, err := json.Marshal(ev); err == nil {
				sub.send <- data
			}
		})
		defer hub.unsubscribe(sub)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeEvents(ctx, cancel, c, sub)

		err = readIntents(ctx, c, g)
		middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, tableID.String(), err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// writeEvents forwards queued events until the subscriber is closed by the hub
// or the connection goes away.
func writeEvents(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, sub *subscriber) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				c.Close(SlowConsumerError, "Too far behind, reconnect to resync.")
				return
			}
			writeCtx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}

// readIntents applies intents until the client leaves. Rejections go back to
// the sender only; successful changes reach everyone through state_sync.
// A normal closure returns nil.
func readIntents(ctx context.Context, c *websocket.Conn, g *game.GameEngine) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var in Intent
		if err := json.Unmarshal(data, &in); err != nil {
			sendWsError(ctx, c, "Invalid JSON format.", http.StatusBadRequest)
			continue
		}
		if in.Type == "ping" {
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})
			continue
		}

		res, err := dispatch(g, in)
		if err != nil {
			sendWsError(ctx, c, err.Error(), statusForError(err))
			continue
		}
		// setup changes and prefill are not part of the broadcast state
		if res.Roster != nil || res.Prefill != nil {
			sendWsMessage(ctx, c, map[string]interface{}{
				"type":    "setup",
				"roster":  res.Roster,
				"prefill": res.Prefill,
			})
		}
	}
}

func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = c.Write(writeCtx, websocket.MessageText, msgBytes)
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string, code int) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
		"code":    code,
	})
}
