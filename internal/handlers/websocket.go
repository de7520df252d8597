package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devfolio/dashboard/internal/connections"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
}

// originAllowed accepts listed origins, or only same-host pages when none are listed
func originAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}

	for _, allowed := range allowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// HandleSessionEvents streams session notifications to a dashboard tab
func HandleSessionEvents(manager *connections.Manager, allowedOrigins []string, w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(allowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the failure response
		log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
		return
	}

	c := manager.AddConnection(conn)
	defer func() {
		manager.RemoveConnection(c.ID)
		conn.Close()
	}()

	timeouts := manager.GetTimeouts()
	log.Debug().Str("connection_id", c.ID).Msg("Session subscriber connected")

	// Set up ping/pong handlers
	conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Ping(timeouts.WriteWait); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	if err := c.Send(connections.Event{Type: connections.EventConnected}, timeouts.WriteWait); err != nil {
		return
	}

	// Subscribers only listen; reading drives pong handling and close detection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("Session subscriber dropped")
			}
			return
		}
	}
}
