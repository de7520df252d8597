package connections

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPair returns the server side (registered with manager) and client side
// of one websocket connection
func dialPair(t *testing.T, manager *Manager) (*Connection, *websocket.Conn) {
	t.Helper()

	registered := make(chan *Connection, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		registered <- manager.AddConnection(conn)
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-registered:
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("Server never registered the connection")
		return nil, nil
	}
}

func TestManager(t *testing.T) {
	// Create a context with timeout for the entire test
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("basic add and remove connection", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)

		c := manager.AddConnection(&websocket.Conn{})
		if c.ID == "" {
			t.Fatal("Connection was not assigned an id")
		}
		if !manager.HasConnection(c.ID) {
			t.Error("Connection not found after adding")
		}

		manager.RemoveConnection(c.ID)
		if manager.HasConnection(c.ID) {
			t.Error("Connection still exists after removal")
		}
	})

	t.Run("concurrent connection operations", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		concurrentOps := 100
		var wg sync.WaitGroup
		wg.Add(concurrentOps)

		ids := make(chan string, concurrentOps)
		for i := 0; i < concurrentOps; i++ {
			go func() {
				defer wg.Done()
				select {
				case <-ctx.Done():
					return
				default:
					ids <- manager.AddConnection(&websocket.Conn{}).ID
				}
			}()
		}

		waitCh := make(chan struct{})
		go func() {
			wg.Wait()
			close(waitCh)
		}()

		select {
		case <-ctx.Done():
			t.Fatal("Test timed out")
		case <-waitCh:
		}
		close(ids)

		if got := manager.GetConnectionCount(); got != concurrentOps {
			t.Errorf("Expected %d connections, got %d", concurrentOps, got)
		}

		for id := range ids {
			manager.RemoveConnection(id)
		}
		if got := manager.GetConnectionCount(); got != 0 {
			t.Errorf("Expected no connections after cleanup, got %d", got)
		}
	})

	t.Run("memory leak check", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		iterations := 1000

		var m1, m2 runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&m1)

		for i := 0; i < iterations; i++ {
			c := manager.AddConnection(&websocket.Conn{})
			manager.RemoveConnection(c.ID)
		}

		runtime.GC()
		time.Sleep(100 * time.Millisecond)
		runtime.ReadMemStats(&m2)

		var memoryGrowth int64
		if m2.HeapAlloc >= m1.HeapAlloc {
			memoryGrowth = int64(m2.HeapAlloc - m1.HeapAlloc)
		} else {
			memoryGrowth = -int64(m1.HeapAlloc - m2.HeapAlloc)
		}

		maxAcceptableGrowth := int64(iterations * 1024) // 1KB per iteration
		if memoryGrowth > maxAcceptableGrowth {
			t.Errorf("Possible memory leak detected: memory growth of %d bytes exceeds threshold of %d bytes",
				memoryGrowth, maxAcceptableGrowth)
		}
	})

	t.Run("timeout configuration", func(t *testing.T) {
		customTimeouts := TimeoutConfig{
			PongWait:   1 * time.Minute,
			PingPeriod: 54 * time.Second,
			WriteWait:  20 * time.Second,
		}

		manager := NewManager(customTimeouts)
		if manager.GetTimeouts() != customTimeouts {
			t.Error("Timeout configuration not set correctly")
		}

		newTimeouts := TimeoutConfig{
			PongWait:   2 * time.Minute,
			PingPeriod: 108 * time.Second,
			WriteWait:  30 * time.Second,
		}
		manager.SetTimeouts(newTimeouts)

		if manager.GetTimeouts() != newTimeouts {
			t.Error("Timeout configuration not updated correctly")
		}
	})
}

func TestBroadcast(t *testing.T) {
	manager := NewManager(DefaultTimeouts)

	_, first := dialPair(t, manager)
	_, second := dialPair(t, manager)

	delivered := manager.Broadcast(Event{Type: EventSessionExpired, Reason: "refresh rejected"})
	if delivered != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", delivered)
	}

	for _, client := range []*websocket.Conn{first, second} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))

		var event Event
		if err := client.ReadJSON(&event); err != nil {
			t.Fatalf("Failed to read event: %v", err)
		}
		if event.Type != EventSessionExpired || event.Reason != "refresh rejected" {
			t.Errorf("Unexpected event %+v", event)
		}
	}
}

func TestBroadcastDropsBrokenConnections(t *testing.T) {
	manager := NewManager(DefaultTimeouts)

	broken, _ := dialPair(t, manager)
	healthy, client := dialPair(t, manager)

	broken.conn.Close()

	if delivered := manager.Broadcast(Event{Type: EventSignedOut}); delivered != 1 {
		t.Fatalf("Expected 1 delivery, got %d", delivered)
	}
	if manager.HasConnection(broken.ID) {
		t.Error("Broken connection was not dropped")
	}
	if !manager.HasConnection(healthy.ID) {
		t.Error("Healthy connection was dropped")
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	if err := client.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if event.Type != EventSignedOut {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestCloseAll(t *testing.T) {
	manager := NewManager(DefaultTimeouts)
	_, client := dialPair(t, manager)

	manager.CloseAll()

	if got := manager.GetConnectionCount(); got != 0 {
		t.Errorf("Expected no connections, got %d", got)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}
