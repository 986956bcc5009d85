package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"humanoid-referee/internal/referee"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// broadcastInterval caps state pushes at 10 per second
	broadcastInterval = 100 * time.Millisecond

	writeTimeout = 2 * time.Second
)

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// wsMessage is the envelope of every pushed message.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WebSocketHub pushes referee decisions and rule events to spectators.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex

	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter
	log       zerolog.Logger
}

// NewWebSocketHub creates a hub whose upgrader checks origins against
// policy.
func NewWebSocketHub(policy *OriginPolicy, logger zerolog.Logger) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		log:        logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if policy.Allowed(origin) {
				return true
			}
			h.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every connection.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn, client := range h.clients {
				h.wsLimiter.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.log.Debug().Str("ip", client.ip).Int("total", count).Msg("websocket client connected")
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.drop(conn)
			count := h.ClientCount()
			h.log.Debug().Int("remaining", count).Msg("websocket client disconnected")
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.drop(conn)
			}
			IncrementWSMessages()
		}
	}
}

func (h *WebSocketHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[conn]; ok {
		h.wsLimiter.Release(client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
}

// Broadcast queues a message for all connected clients. Messages are
// dropped when the queue is full.
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	jsonBytes, err := json.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("websocket marshal failed")
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StreamDecisions forwards the feed to clients until ctx is cancelled:
// the latest decision as "referee:state" at most every broadcastInterval,
// and each new journal event once as "referee:event".
func (h *WebSocketHub) StreamDecisions(ctx context.Context, feed DecisionSource, events EventSource) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	var lastTick referee.Tick = -1
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.Updated():
		}

		// throttle: wait out the interval, then push whatever is newest
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if h.ClientCount() == 0 {
			continue
		}

		if d := feed.Latest(); d != nil && d.Tick != lastTick {
			lastTick = d.Tick
			h.Broadcast("referee:state", d)
		}
		if events != nil {
			for _, ev := range events.Recent(256) {
				if ev.Sequence <= lastSeq {
					continue
				}
				lastSeq = ev.Sequence
				h.Broadcast("referee:event", ev)
			}
		}
	}
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		h.log.Warn().Int("total", total).Msg("websocket rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		h.log.Warn().Str("ip", ip).Msg("websocket rejected: per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		h.wsLimiter.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.done:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	// Spectators only listen; reads detect the close.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
