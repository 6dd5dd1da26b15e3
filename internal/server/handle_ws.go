package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket"
)

// handleProgressWS streams the same events as handleEvents over a
// WebSocket. Client messages are ignored. Cross-origin upgrades are
// accepted only from hosts matching originPatterns.
func handleProgressWS(logger *slog.Logger, broker Broker, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := currentUser(r)

		ch, cancel, err := broker.Subscribe(r.Context(), user.ID)
		if err != nil {
			logger.Error("subscribing to progress events failed", "user_id", user.ID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
			return
		}
		defer cancel()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "origin", r.Header.Get("Origin"), "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("websocket closed", "user_id", user.ID)
				return
			case data, ok := <-ch:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "stream ended")
					return
				}
				if err := write(ctx, conn, data); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			case <-ping.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake checks the Origin header against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
