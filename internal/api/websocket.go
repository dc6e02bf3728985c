package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apocaliss92/scrypted-neolink/internal/bridges/neolink"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/logging"
)

// Client message types.
const (
	WSTypeWatch    = "watch"     // payload {"cameras": [...]}; empty watches all
	WSTypeGetState = "get_state" // replays current state of watched cameras
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeEvent    = "event"
	WSTypeResponse = "response"
	WSTypeError    = "error"

	// ChannelCameraState is the event_type of camera state events.
	ChannelCameraState = "camera.state"
)

const (
	wsSendBufferSize = 256
	wsMaxMessageSize = 8192
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 10 * time.Second
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// watchPayload selects cameras by native id.
type watchPayload struct {
	Cameras []string `json:"cameras"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers are authenticated by token, not origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans camera state out to WebSocket clients.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastState is the neolink.Provider subscriber. It sends state to every
// client watching the camera.
func (h *Hub) BroadcastState(state neolink.CameraState) {
	data, err := stateEvent(state)
	if err != nil {
		h.logger.Error("failed to encode camera state", "camera", state.Name, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.watches(state.NativeID) && !c.deliver(data) {
			h.logger.Warn("websocket client too slow, dropping state", "camera", state.Name)
		}
	}
}

func stateEvent(state neolink.CameraState) ([]byte, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelCameraState,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// wsClient is one connection. A nil camera filter watches every camera.
type wsClient struct {
	hub      *Hub
	provider *neolink.Provider
	conn     *websocket.Conn
	send     chan []byte

	mu      sync.Mutex
	cameras map[string]struct{}
	closed  bool
}

// handleWebSocket upgrades the connection and replays the current state of
// every camera before streaming changes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		provider: s.provider,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
	}
	c.replayState()
	s.hub.add(c)

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) watches(nativeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cameras == nil {
		return true
	}
	_, ok := c.cameras[nativeID]
	return ok
}

// deliver queues data without blocking. It reports false when the buffer is
// full; sends after close are dropped silently.
func (c *wsClient) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) replayState() {
	for _, cam := range c.provider.Cameras() {
		state := cam.State()
		if !c.watches(state.NativeID) {
			continue
		}
		if data, err := stateEvent(state); err == nil {
			c.deliver(data)
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeWatch:
		var p watchPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				c.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid watch payload"})
				return
			}
		}
		c.setWatch(p.Cameras)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"cameras": p.Cameras})
		c.replayState()
	case WSTypeGetState:
		c.reply(msg.ID, WSTypeResponse, nil)
		c.replayState()
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *wsClient) setWatch(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		c.cameras = nil
		return
	}
	c.cameras = make(map[string]struct{}, len(ids))
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		c.cameras[id] = struct{}{}
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		msg.Payload = raw
	}
	if data, err := json.Marshal(msg); err == nil {
		c.deliver(data)
	}
}
