package connections

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

const (
	EventConnected      = "connected"
	EventSessionExpired = "session_expired"
	EventSignedOut      = "signed_out"
)

// Event is a session notification pushed to every subscriber
type Event struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// Connection is one subscriber. Writes are serialized since gorilla/websocket
// allows a single concurrent writer.
type Connection struct {
	ID   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Send writes v as a JSON text frame
func (c *Connection) Send(v any, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Ping writes a ping control frame
func (c *Connection) Ping(wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wait))
}

// Manager tracks session-event subscribers and fans events out to them
type Manager struct {
	connections sync.Map

	mu       sync.RWMutex
	timeouts TimeoutConfig
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a new WebSocket connection
func (m *Manager) AddConnection(conn *websocket.Conn) *Connection {
	c := &Connection{
		ID:   uuid.New().String(),
		conn: conn,
	}
	m.connections.Store(c.ID, c)
	return c
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(id string) {
	m.connections.Delete(id)
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// HasConnection checks if a specific connection exists
func (m *Manager) HasConnection(id string) bool {
	_, exists := m.connections.Load(id)
	return exists
}

// Broadcast sends event to every subscriber and returns how many received it.
// A subscriber that cannot be written to is dropped.
func (m *Manager) Broadcast(event Event) int {
	wait := m.GetTimeouts().WriteWait
	delivered := 0

	m.connections.Range(func(key, value interface{}) bool {
		c := value.(*Connection)
		if err := c.Send(event, wait); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Str("event", event.Type).
				Msg("Dropping unreachable session subscriber")
			m.connections.Delete(key)
			c.conn.Close()
			return true
		}
		delivered++
		return true
	})

	log.Debug().
		Str("event", event.Type).
		Int("delivered", delivered).
		Msg("Session event broadcast")
	return delivered
}

// CloseAll sends a close frame to every subscriber and forgets them
func (m *Manager) CloseAll() {
	wait := m.GetTimeouts().WriteWait
	m.connections.Range(func(key, value interface{}) bool {
		c := value.(*Connection)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wait),
		)
		c.writeMu.Unlock()
		c.conn.Close()
		m.connections.Delete(key)
		return true
	})
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// SetTimeouts updates the timeout configuration
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}
