package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/JPITSG/ChromeDevLauncher/status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Loopback-only API serving a local UI.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub fans status snapshots out to connected websocket clients.
type hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
	last  *status.Snapshot
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	// New clients get the current snapshot before joining the fan-out,
	// so no relay write can interleave with this one.
	h.mu.Lock()
	last := h.last
	h.mu.Unlock()
	if last != nil {
		if err := conn.WriteJSON(*last); err != nil {
			conn.Close()
			return
		}
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// Reader loop only notices disconnects; clients never send data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// relay pushes every status change to all connected clients. Write
// errors drop the individual connection and never block the rest.
func (h *hub) relay(updates <-chan status.Snapshot) {
	for snap := range updates {
		h.mu.Lock()
		h.last = &snap
		conns := make([]*websocket.Conn, 0, len(h.conns))
		for conn := range h.conns {
			conns = append(conns, conn)
		}
		h.mu.Unlock()

		for _, conn := range conns {
			if err := conn.WriteJSON(snap); err != nil {
				h.drop(conn)
			}
		}
	}
}

func (h *hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
