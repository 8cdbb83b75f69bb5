package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/pkg/models"
)

// Event types pushed to dashboard clients.
const (
	EventRunCompleted = "run_completed"
	EventRingAlert    = "ring_alert"
)

// Envelope is the frame every stream message is wrapped in.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active websocket clients and broadcasts messages.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	upgrader  websocket.Upgrader
}

// NewHub creates a hub. allowOrigin decides the websocket origin check;
// nil allows every origin.
func NewHub(allowOrigin func(origin string) bool) *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowOrigin == nil || origin == "" || allowOrigin(origin)
			},
		},
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps a blocked client from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Stream] Websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] Failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	log.Printf("[Stream] Client connected. Total clients: %d", total)

	// Push-only stream; reads only detect disconnects
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[Stream] Client disconnected. Total clients: %d", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Stream] WebSocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast queues data for all clients. A full queue drops the message
// rather than blocking the caller.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Println("[Stream] Broadcast queue full, dropping message")
	}
}

// BroadcastEvent wraps v in an Envelope and broadcasts it.
func (h *Hub) BroadcastEvent(eventType string, v interface{}) {
	data, err := json.Marshal(Envelope{Type: eventType, Data: v})
	if err != nil {
		log.Printf("[Stream] Failed to encode %s event: %v", eventType, err)
		return
	}
	h.Broadcast(data)
}

// BroadcastRunCompleted is wired as the analyzer's completion hook.
func BroadcastRunCompleted(hub *Hub) func(models.AnalysisRun) {
	return func(run models.AnalysisRun) {
		hub.BroadcastEvent(EventRunCompleted, run.Summary())
	}
}

// BroadcastRingAlert is wired as the alert manager's broadcast callback.
func BroadcastRingAlert(hub *Hub) func(alerts.Alert) {
	return func(alert alerts.Alert) {
		hub.BroadcastEvent(EventRingAlert, alert)
	}
}
