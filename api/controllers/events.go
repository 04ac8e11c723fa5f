package controllers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexchakra/storefront-backend/internal/events"
	"github.com/nexchakra/storefront-backend/pkg/config"
	"github.com/nexchakra/storefront-backend/pkg/logger"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser auth happens before the upgrade; origin policy is
		// handled by the CORS middleware on the rest of the API.
		return true
	},
}

// EventsStream upgrades the connection and relays hub events until the
// client goes away or falls too far behind.
func EventsStream(hub *events.Hub, cfg config.EventsConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			if logg != nil {
				logg.Error(r.Context(), "websocket upgrade failed", err)
			}
			return
		}
		defer conn.Close()

		obs := hub.Subscribe()
		defer obs.Close()

		writeTimeout := cfg.WriteTimeout
		if writeTimeout <= 0 {
			writeTimeout = 5 * time.Second
		}
		pingInterval := cfg.PingInterval
		if pingInterval <= 0 {
			pingInterval = 30 * time.Second
		}

		// Reader goroutine only services control frames and detects
		// disconnects; clients never send data.
		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(512)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case payload, ok := <-obs.C():
				if !ok {
					// Dropped by the hub for falling behind.
					deadline := time.Now().Add(writeTimeout)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "observer too slow"),
						deadline)
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
