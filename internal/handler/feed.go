package handler

import (
	"net/http"

	"trayaudit/internal/logger"
	"trayaudit/internal/middleware"
	feedhub "trayaudit/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// FeedHandler handles viewer connections on /api/feed and registers them in
// the hub to receive analysis outcomes.
func FeedHandler(hub *feedhub.HubService, allowedOrigins string, logger *logger.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		logger.Info("Feed viewer connected from %s", r.RemoteAddr)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Feed viewer disconnected normally")
				} else {
					logger.Warning("Feed viewer disconnected with error: %v", err)
				}
				break
			}
		}
	}
}
