package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned when sending on a closed WebSocket.
var ErrNotConnected = errors.New("websocket not connected")

// WSPrompt is a frame sent to the agent.
type WSPrompt struct {
	Prompt  string         `json:"prompt"`
	Options *PromptOptions `json:"options,omitempty"`
	Stream  *bool          `json:"stream,omitempty"`
}

// WSMessage is a frame received from the agent. The first frame of a
// session socket has Type "history" and carries the Session.
type WSMessage struct {
	Type     string   `json:"type,omitempty"`
	Session  *Session `json:"session,omitempty"`
	Response string   `json:"response,omitempty"`
	Stream   *bool    `json:"stream,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// EndOfStream reports whether m closes a streamed answer.
func (m *WSMessage) EndOfStream() bool {
	return m.Stream != nil && !*m.Stream && m.Response == ""
}

// WSEvent is a WebSocket lifecycle event.
type WSEvent string

const (
	WSConnected    WSEvent = "connected"
	WSDisconnected WSEvent = "disconnected"
	WSSent         WSEvent = "sent"
	WSReceived     WSEvent = "received"
	WSDropped      WSEvent = "dropped"
)

// WebSocketObserver is an Observer that also wants WebSocket events.
type WebSocketObserver interface {
	ObserveWebSocket(WSEvent)
}

const wsBufferSize = 100

// WebSocketClient is an open connection to the agent's /ws endpoint.
type WebSocketClient struct {
	conn     *websocket.Conn
	messages chan *WSMessage
	done     chan struct{}
	readDone chan struct{}
	logger   zerolog.Logger
	observer WebSocketObserver

	closeOnce sync.Once
	writeMu   sync.Mutex
	mu        sync.RWMutex
	connected bool
	readErr   error
}

// DialWebSocket opens a WebSocket. The handshake goes through the same
// merge and security steps as HTTP calls; the base URL's http scheme is
// switched to ws.
func (c *HTTPClient) DialWebSocket(ctx context.Context, q WSQuery, opts ...RequestOption) (ws *WebSocketClient, err error) {
	p, err := mustEndpoint(OpWebSocket).params(nil)
	if err != nil {
		return nil, err
	}
	p.Query = q.values()

	start := time.Now()
	status := 0
	defer func() { c.observe(p, status, start, err) }()

	prepared, err := c.prepare(ctx, &p, opts, false)
	if err != nil {
		return nil, err
	}
	defer prepared.cancel()

	u := *prepared.req.URL
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, &ConfigurationError{Op: p.Operation, Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	header := prepared.req.Header.Clone()
	header.Del("Content-Type")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(prepared.req.Context(), u.String(), header)
	if err != nil {
		terr := &TransportError{Method: p.Method, URL: u.Redacted(), Err: err}
		if resp != nil {
			status = resp.StatusCode
			terr.StatusCode = resp.StatusCode
			if resp.Body != nil {
				terr.Body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
			}
		}
		return nil, terr
	}
	status = resp.StatusCode

	ws = newWebSocketClient(conn, c.opts.logger)
	if o, ok := c.opts.observer.(WebSocketObserver); ok {
		ws.observer = o
	}
	ws.notify(WSConnected)
	go ws.readLoop()
	return ws, nil
}

func newWebSocketClient(conn *websocket.Conn, logger zerolog.Logger) *WebSocketClient {
	return &WebSocketClient{
		conn:      conn,
		messages:  make(chan *WSMessage, wsBufferSize),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		logger:    logger.With().Str("component", "websocket").Logger(),
		connected: true,
	}
}

func (ws *WebSocketClient) notify(e WSEvent) {
	if ws.observer != nil {
		ws.observer.ObserveWebSocket(e)
	}
}

// readLoop reads frames until the connection fails or is closed.
func (ws *WebSocketClient) readLoop() {
	defer func() {
		ws.mu.Lock()
		ws.connected = false
		ws.mu.Unlock()
		ws.notify(WSDisconnected)
		close(ws.messages)
		close(ws.readDone)
	}()

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					ws.logger.Warn().Err(err).Msg("websocket read failed")
				}
				ws.mu.Lock()
				ws.readErr = err
				ws.mu.Unlock()
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.logger.Debug().Err(err).Msg("skipping malformed frame")
			continue
		}
		ws.notify(WSReceived)

		select {
		case ws.messages <- &msg:
		case <-ws.done:
			return
		default:
			// Buffer full: drop the oldest frame.
			select {
			case <-ws.messages:
				ws.notify(WSDropped)
			default:
			}
			ws.messages <- &msg
		}
	}
}

// Messages delivers received frames. It is closed when the connection ends.
func (ws *WebSocketClient) Messages() <-chan *WSMessage {
	return ws.messages
}

// Done is closed once the read loop has exited.
func (ws *WebSocketClient) Done() <-chan struct{} {
	return ws.readDone
}

// Send writes one prompt frame.
func (ws *WebSocketClient) Send(msg WSPrompt) error {
	if !ws.IsConnected() {
		return ErrNotConnected
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.WriteJSON(msg); err != nil {
		return &TransportError{Method: "WS", Err: err}
	}
	ws.notify(WSSent)
	return nil
}

// SendPrompt sends a plain prompt.
func (ws *WebSocketClient) SendPrompt(prompt string) error {
	return ws.Send(WSPrompt{Prompt: prompt})
}

// Close ends the connection and waits for the read loop to exit. It is safe
// to call more than once.
func (ws *WebSocketClient) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.writeMu.Lock()
		err = ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.writeMu.Unlock()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		if cerr := ws.conn.Close(); err == nil {
			err = cerr
		}
		<-ws.readDone
		// A connection the peer already ended has nothing left to close.
		if ws.Err() != nil {
			err = nil
		}
	})
	return err
}

// IsConnected reports whether the read loop is still running.
func (ws *WebSocketClient) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}

// Err returns the error that ended the connection, if it was not closed by
// Close.
func (ws *WebSocketClient) Err() error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.readErr
}
