package frontend

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	sceneUpdatedType = "scene-updated"
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	broadcastBuffer  = 64
)

// SceneEvent tells the browsers of a workspace that a side must be reloaded.
type SceneEvent struct {
	Type        string `json:"type"`
	Side        string `json:"side"`
	WorkspaceID string `json:"-"`
}

type subscription struct {
	workspaceID string
	conn        *websocket.Conn
}

// Hub fans scene events out to the websocket clients of each workspace.
type Hub struct {
	clients    map[string]map[*websocket.Conn]bool
	broadcast  chan SceneEvent
	register   chan subscription
	unregister chan subscription
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		broadcast:  make(chan SceneEvent, broadcastBuffer),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mutex.Lock()
			if h.clients[sub.workspaceID] == nil {
				h.clients[sub.workspaceID] = make(map[*websocket.Conn]bool)
			}
			h.clients[sub.workspaceID][sub.conn] = true
			count := len(h.clients[sub.workspaceID])
			h.mutex.Unlock()
			slog.Debug("Hub: client connected", "workspace_id", sub.workspaceID, "clients", count)

		case sub := <-h.unregister:
			h.mutex.Lock()
			h.remove(sub.workspaceID, sub.conn)
			h.mutex.Unlock()
			slog.Debug("Hub: client disconnected", "workspace_id", sub.workspaceID)

		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				slog.Error("Hub: failed to encode event", "error", err)
				continue
			}
			h.mutex.Lock()
			for conn := range h.clients[event.WorkspaceID] {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					slog.Warn("Hub: failed to send event", "workspace_id", event.WorkspaceID, "error", err)
					h.remove(event.WorkspaceID, conn)
				}
			}
			h.mutex.Unlock()

		case <-h.done:
			h.mutex.Lock()
			for workspaceID, conns := range h.clients {
				for conn := range conns {
					h.remove(workspaceID, conn)
				}
			}
			h.mutex.Unlock()
			return
		}
	}
}

// remove must be called with the mutex held.
func (h *Hub) remove(workspaceID string, conn *websocket.Conn) {
	conns, ok := h.clients[workspaceID]
	if !ok || !conns[conn] {
		return
	}
	delete(conns, conn)
	_ = conn.Close()
	if len(conns) == 0 {
		delete(h.clients, workspaceID)
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// SceneChanged queues a scene event. It never blocks; events are dropped when
// the queue is full.
func (h *Hub) SceneChanged(workspaceID, side string) {
	select {
	case h.broadcast <- SceneEvent{Type: sceneUpdatedType, Side: side, WorkspaceID: workspaceID}:
	default:
		slog.Warn("Hub: event queue full, dropping event", "workspace_id", workspaceID, "side", side)
	}
}

func (h *Hub) ClientCount(workspaceID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[workspaceID])
}

// websocketHandler upgrades the request and keeps the connection registered
// until the browser goes away. Browsers only listen; incoming messages are discarded.
func (h *Hub) websocketHandler(ctx echo.Context) error {
	workspaceID := ctx.Param("id")
	conn, err := h.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		slog.Warn("websocketHandler: upgrade failed", "workspace_id", workspaceID, "error", err)
		return nil
	}
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := subscription{workspaceID: workspaceID, conn: conn}
	select {
	case h.register <- sub:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	defer func() {
		select {
		case h.unregister <- sub:
		case <-h.done:
		}
	}()

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocketHandler: connection closed", "workspace_id", workspaceID, "error", err)
			}
			return nil
		}
	}
}
