package testserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maumercado/miri-go/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is one open WebSocket.
type Conn struct {
	ID        string
	SessionID string
	Channel   string
	Device    string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub tracks open WebSocket connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*Conn]bool)}
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// ConnCount returns the number of open connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll sends a going-away close frame to every connection and drops it.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	}
}

type inboundFrame struct {
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
	Stream  *bool          `json:"stream,omitempty"`
}

// ServeWS handles GET /ws. A channel and device pair bridges a messaging
// channel; otherwise the socket joins session_id or a new session for
// client_id, and the first frame is the session history.
func (h *handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := &Conn{
		ID:        uuid.New().String()[:8],
		SessionID: q.Get("session_id"),
		Channel:   q.Get("channel"),
		Device:    q.Get("device"),
	}
	streamAll := q.Get("stream") == "true"
	bridge := c.Channel != "" && c.Device != ""
	if !bridge && c.SessionID == "" {
		c.SessionID = h.store.CreateSession(q.Get("client_id"))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := logger.ForRequest("testserver", r)
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}
	c.conn = conn
	conn.SetReadLimit(maxMessageSize)

	h.hub.Register(c)
	defer func() {
		h.hub.Unregister(c)
		_ = conn.Close()
	}()

	log := logger.WithSession(logger.WithComponent("testserver").With().Str("conn_id", c.ID).Logger(), c.SessionID)
	log.Debug().Bool("bridge", bridge).Msg("WebSocket client connected")

	if !bridge {
		sess, ok := h.store.Session(c.SessionID)
		if !ok {
			sess = Session{ID: c.SessionID, Messages: []Message{}}
		}
		if err := c.writeJSON(map[string]any{"type": "history", "session": sess}); err != nil {
			return
		}
	}

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		if frame.Prompt == "" {
			if err := c.writeJSON(map[string]string{"error": "prompt is required"}); err != nil {
				return
			}
			continue
		}

		answer := Answer(frame.Prompt)
		stream := streamAll || (frame.Stream != nil && *frame.Stream)
		if stream {
			for _, chunk := range Chunks(answer) {
				if err := c.writeJSON(map[string]any{"response": chunk, "stream": true}); err != nil {
					return
				}
			}
			if err := c.writeJSON(map[string]bool{"stream": false}); err != nil {
				return
			}
		} else if err := c.writeJSON(map[string]string{"response": answer}); err != nil {
			return
		}

		if !bridge {
			h.store.Record(c.SessionID, frame.Prompt, answer)
		}
	}
}
