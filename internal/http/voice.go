package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-speech-interaction-service/internal/app"
	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/service/session"
	"ai-speech-interaction-service/internal/speech"
)

const (
	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// Server message types.
const (
	MessageSession = "session"
	MessageState   = "state"
	MessageAudio   = "audio"
	MessageError   = "error"
)

// serverMessage is a text frame sent to the client. An audio message is
// followed by one binary frame holding the clip.
type serverMessage struct {
	Type        string        `json:"type"`
	SessionID   string        `json:"sessionId,omitempty"`
	Recognition *bool         `json:"recognition,omitempty"`
	Synthesis   *bool         `json:"synthesis,omitempty"`
	State       *speech.State `json:"state,omitempty"`
	Format      string        `json:"format,omitempty"`
	Volume      float64       `json:"volume,omitempty"`
	Size        int           `json:"size,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type voiceHandler struct {
	app      *app.Application
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func newVoiceHandler(application *app.Application) *voiceHandler {
	allowed := application.Cfg.HTTP.AllowedOrigins
	return &voiceHandler{
		app: application,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowed)
			},
		},
		logger: logging.WithComponent("voice-ws"),
	}
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// ServeHTTP runs one voice session for the lifetime of the connection.
func (h *voiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.app.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	ws := &wsConn{conn: conn}
	defer conn.Close()

	sess := h.app.NewSession(ws)
	defer sess.Close()
	logger := logging.WithSession(sess.ID())

	rec, syn := h.app.Providers.Available()
	if err := ws.writeJSON(serverMessage{
		Type:        MessageSession,
		SessionID:   sess.ID(),
		Recognition: &rec,
		Synthesis:   &syn,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to send session message")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := sess.Run(ctx, ws.sendState)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug().Err(err).Msg("State stream ended")
		}
		// Unblock the reader when the client can no longer be written to.
		_ = conn.SetReadDeadline(time.Now())
	}()
	go func() {
		defer wg.Done()
		ws.keepAlive(ctx)
	}()

	h.readLoop(conn, ws, sess, logger)

	cancel()
	sess.Close()
	wg.Wait()
}

func (h *voiceHandler) readLoop(conn *websocket.Conn, ws *wsConn, sess *session.Session, logger zerolog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			if err := sess.Feed(data); err != nil {
				_ = ws.writeJSON(serverMessage{Type: MessageError, Error: err.Error()})
			}
		case websocket.TextMessage:
			var cmd session.Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				_ = ws.writeJSON(serverMessage{Type: MessageError, Error: "malformed command"})
				continue
			}
			if err := sess.Handle(cmd); err != nil {
				_ = ws.writeJSON(serverMessage{Type: MessageError, Error: err.Error()})
			}
		}
	}
}

// wsConn serializes writes to a websocket connection. It is the session's
// speech.AudioOutput.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) sendState(st speech.State) error {
	return c.writeJSON(serverMessage{Type: MessageState, State: &st})
}

// WriteAudio sends the clip header and the clip as one binary frame.
func (c *wsConn) WriteAudio(clip speech.AudioClip) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(serverMessage{
		Type:   MessageAudio,
		Format: clip.Format,
		Volume: clip.Volume,
		Size:   len(clip.Data),
	}); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, clip.Data)
}

func (c *wsConn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
