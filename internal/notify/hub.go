package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsReadLimit  = 1024
	wsPingPeriod = wsPongWait * 9 / 10
)

// LocationUpdater receives location pings sent by connected drivers.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error
}

// Hub keeps one websocket connection per driver and pushes notifications
// addressed to that driver.
type Hub struct {
	upgrader  websocket.Upgrader
	locations LocationUpdater

	mu    sync.RWMutex
	conns map[string]*hubConn
}

type hubConn struct {
	ws *websocket.Conn
	mu sync.Mutex // serializes writes
}

// NewHub creates a new Hub. locations may be nil.
func NewHub(locations LocationUpdater) *Hub {
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		locations: locations,
		conns:     make(map[string]*hubConn),
	}
}

// ServeWS upgrades the request and registers the driver's connection,
// replacing any previous one.
func (h *Hub) ServeWS(driverID string, w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HUB] upgrade failed for driver %s: %v", driverID, err)
		return
	}

	conn := &hubConn{ws: ws}

	h.mu.Lock()
	if old, ok := h.conns[driverID]; ok {
		_ = old.ws.Close()
	}
	h.conns[driverID] = conn
	h.mu.Unlock()

	log.Printf("[HUB] driver %s connected", driverID)

	go h.pingLoop(driverID, conn)
	go h.readLoop(driverID, conn)
}

// Publish pushes the payload to the connected driver named in its
// recipient_id field. Notifications for drivers that are offline are dropped.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	var envelope struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.RecipientID == "" {
		return nil
	}

	h.mu.RLock()
	conn := h.conns[envelope.RecipientID]
	h.mu.RUnlock()
	if conn == nil {
		return nil
	}

	message, err := json.Marshal(struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}

	return conn.write(websocket.TextMessage, message)
}

// Connected reports whether the driver currently holds a connection.
func (h *Hub) Connected(driverID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[driverID]
	return ok
}

func (h *Hub) readLoop(driverID string, conn *hubConn) {
	defer h.remove(driverID, conn)

	conn.ws.SetReadLimit(wsReadLimit)
	_ = conn.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(wsPongWait))

		var ping struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		}
		if err := json.Unmarshal(message, &ping); err != nil || ping.Lat == nil || ping.Lng == nil {
			continue
		}
		if h.locations == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.locations.UpdateLocation(ctx, driverID, *ping.Lat, *ping.Lng); err != nil {
			log.Printf("[HUB] location update failed for driver %s: %v", driverID, err)
		}
		cancel()
	}
}

func (h *Hub) pingLoop(driverID string, conn *hubConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			h.remove(driverID, conn)
			return
		}
	}
}

func (h *Hub) remove(driverID string, conn *hubConn) {
	h.mu.Lock()
	if h.conns[driverID] == conn {
		delete(h.conns, driverID)
		log.Printf("[HUB] driver %s disconnected", driverID)
	}
	h.mu.Unlock()
	_ = conn.ws.Close()
}

func (c *hubConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteMessage(messageType, data)
}
