package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/PabloGalante/needlingo/internal/observability"
)

const (
	eventBuffer       = 16
	eventWriteTimeout = 10 * time.Second
)

// handleSessionEvents streams the player's session View over a websocket: the
// current View first, then one after every mutation. Client messages are ignored.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	t := s.trainer(r)
	log := observability.LoggerFromContext(r.Context()).With("user_id", t.Sessions.UserID())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("failed to accept websocket", "error", err)
		return
	}
	defer ws.CloseNow()

	views, unsubscribe := t.Sessions.Subscribe(eventBuffer)
	defer unsubscribe()

	ctx := ws.CloseRead(r.Context())

	if err := writeEvent(ctx, ws, t.Turns.View()); err != nil {
		log.Debug("failed to send initial view", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := writeEvent(ctx, ws, v); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
