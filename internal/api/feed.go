package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clearfab/gateway/internal/events"
)

// Feed streams gateway events to operator dashboards over WebSocket. Slow
// clients are dropped rather than allowed to stall the broadcast.
type Feed struct {
	bus      *events.Bus
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewFeed(bus *events.Bus) *Feed {
	return &Feed{
		bus:     bus,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the ops feed is same-origin behind the admin ingress
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.New(log.Writer(), "[FEED] ", log.LstdFlags),
	}
}

// Run subscribes to the bus and broadcasts until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	if f.bus == nil {
		return
	}
	ch := f.bus.Subscribe()
	go func() {
		defer f.bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				f.closeAll()
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				f.broadcast(ev)
			}
		}
	}()
}

// Handle upgrades the connection and keeps it registered until the client
// goes away.
func (f *Feed) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Printf("upgrade failed: %v", err)
		return
	}
	f.mu.Lock()
	f.clients[conn] = true
	n := len(f.clients)
	f.mu.Unlock()
	f.logger.Printf("client connected (%d active)", n)

	// reads only detect disconnects; the feed is one-way
	go func() {
		defer f.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *Feed) broadcast(ev *events.Event) {
	f.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for c := range f.clients {
		conns = append(conns, c)
	}
	f.mu.RUnlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteJSON(ev); err != nil {
			f.drop(c)
		}
	}
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	if _, ok := f.clients[conn]; ok {
		delete(f.clients, conn)
		conn.Close()
	}
	f.mu.Unlock()
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		c.Close()
	}
	f.clients = make(map[*websocket.Conn]bool)
}
