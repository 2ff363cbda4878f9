package bridge

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"hostbridge/internal/agentqueue"
)

// eventFeed streams completed-action events to WebSocket subscribers
// (dashboards, log viewers). Delivery is best effort: a subscriber that
// cannot keep up is dropped.
type eventFeed struct {
	upgrader websocket.Upgrader
	conns    sync.Map // connID -> *feedConn
	seq      atomic.Int64
}

// feedConn wraps a socket with a write lock; gorilla/websocket allows only
// one concurrent writer per connection.
type feedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newEventFeed() *eventFeed {
	return &eventFeed{
		upgrader: websocket.Upgrader{
			// Loopback-only service; browser dashboards connect from
			// file:// or localhost origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (f *eventFeed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	connID := fmt.Sprintf("feed-%d", f.seq.Add(1))
	fc := &feedConn{conn: conn}
	f.conns.Store(connID, fc)
	log.Printf("[Bridge] event feed subscriber %s connected", connID)

	defer func() {
		f.conns.Delete(connID)
		conn.Close()
	}()

	// Drain control frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast sends one action entry to every subscriber. Runs on the worker
// goroutine that completed the action.
func (f *eventFeed) broadcast(entry agentqueue.ActionEntry) {
	f.conns.Range(func(key, value any) bool {
		fc := value.(*feedConn)
		fc.mu.Lock()
		err := fc.conn.WriteJSON(entry)
		fc.mu.Unlock()
		if err != nil {
			f.conns.Delete(key)
			fc.conn.Close()
		}
		return true
	})
}

// closeAll disconnects every subscriber; called from Stop.
func (f *eventFeed) closeAll() {
	f.conns.Range(func(key, value any) bool {
		value.(*feedConn).conn.Close()
		f.conns.Delete(key)
		return true
	})
}
