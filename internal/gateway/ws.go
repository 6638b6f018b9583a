package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const wsWriteTimeout = 5 * time.Second

// handleEvents streams Envelopes as JSON text frames. ?session= narrows the
// stream to one session. Client messages are ignored; the read loop only
// notices disconnects.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	session := r.URL.Query().Get("session")
	events, cancel := g.hub.Subscribe(session)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	g.logger.Debug("event stream opened", "session_id", session, "remote_addr", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := g.writeEnvelope(ctx, conn, env); err != nil {
				g.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) writeEnvelope(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
