package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/wordscan/internal/frames"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/session"
	"github.com/MeKo-Tech/wordscan/internal/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Live commands accepted as text messages, either as a bare word or as the
// command field of a LiveCommand.
const (
	CommandCapture    = "capture"
	CommandBack       = "back"
	CommandReset      = "reset"
	CommandToggleMode = "toggle_mode"
	CommandMode       = "mode"
	CommandRotation   = "rotation"
	CommandImport     = "import"
	CommandState      = "state"
)

// LiveCommand is a client request on the live connection.
type LiveCommand struct {
	Command  string `json:"command"`
	Mode     string `json:"mode,omitempty"`
	Rotation *int   `json:"rotation,omitempty"`
	// Image is an imported still, base64 encoded in JSON.
	Image []byte `json:"image,omitempty"`
}

// LiveMessage is sent to the client: every state change, command
// acknowledgements and errors.
type LiveMessage struct {
	Type      string         `json:"type"` // "state", "ack" or "error"
	Session   string         `json:"session,omitempty"`
	State     *scanner.State `json:"state,omitempty"`
	Command   string         `json:"command,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// liveConn serializes writes; gorilla connections allow one writer at a time.
type liveConn struct {
	mu      sync.Mutex
	conn    WebSocketConnWriter
	session string
	logger  *slog.Logger
}

func (c *liveConn) send(msg LiveMessage) {
	msg.Session = c.session
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (c *liveConn) sendError(errorType, message string) {
	c.send(LiveMessage{Type: "error", Error: message, ErrorType: errorType})
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if s.corsOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.corsOrigin
		},
	}
}

// liveWebSocketHandler streams camera frames into a dedicated scanner
// session and pushes every state snapshot back to the client.
func (s *Server) liveWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := scanner.ParseMode(q.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rotation := 0
	if v := q.Get("rotation"); v != "" {
		if rotation, err = strconv.Atoi(v); err != nil {
			http.Error(w, "invalid rotation", http.StatusBadRequest)
			return
		}
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	sess, err := s.factory.New(r.Context(), mode)
	if err != nil {
		scanRequestsTotal.WithLabelValues("live", "error").Inc()
		lc := &liveConn{conn: conn, logger: s.logger}
		lc.sendError("session_error", err.Error())
		return
	}
	defer sess.Close()
	scanRequestsTotal.WithLabelValues("live", "success").Inc()

	lc := &liveConn{conn: conn, session: sess.ID, logger: sess.Logger}
	sess.Logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "mode", mode.String())

	states, unsubscribe := sess.Orchestrator.Subscribe()
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for st := range states {
			lc.send(LiveMessage{Type: "state", State: &st})
		}
	}()

	s.handleLiveConnection(conn, sess, lc, rotation)

	unsubscribe()
	<-pushed
}

// handleLiveConnection reads frames and commands until the client goes away.
func (s *Server) handleLiveConnection(conn *websocket.Conn, sess *session.Session, lc *liveConn, rotation int) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lc.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.BinaryMessage:
			s.handleLiveFrame(sess, lc, data, rotation)
		case websocket.TextMessage:
			if r, ok := s.handleLiveCommand(sess, lc, data); ok {
				rotation = r
			}
		}
	}
}

// handleLiveFrame decodes one camera frame and hands it to the frame
// pipeline, which drops it if a scan is still running.
func (s *Server) handleLiveFrame(sess *session.Session, lc *liveConn, data []byte, rotation int) {
	img, _, err := utils.DecodeImage(data, "")
	if err != nil {
		lc.sendError("invalid_frame", err.Error())
		return
	}
	sess.Pipeline.Analyze(frames.NewPooledFrame(img, rotation))
}

// handleLiveCommand applies a text command. It returns the new rotation and
// true when the command changed it.
func (s *Server) handleLiveCommand(sess *session.Session, lc *liveConn, data []byte) (int, bool) {
	cmd, err := parseLiveCommand(data)
	if err != nil {
		lc.sendError("invalid_request", err.Error())
		return 0, false
	}

	orch := sess.Orchestrator
	ack := LiveMessage{Type: "ack", Command: cmd.Command}
	switch cmd.Command {
	case CommandCapture:
		if err := orch.CaptureNextFrame(); err != nil {
			lc.sendError("invalid_state", err.Error())
			return 0, false
		}
	case CommandBack:
		orch.OnBackPressed()
	case CommandReset:
		orch.Reset()
	case CommandToggleMode:
		ack.Mode = orch.ToggleLiveMode().String()
	case CommandMode:
		m, err := scanner.ParseMode(cmd.Mode)
		if err != nil {
			lc.sendError("invalid_request", err.Error())
			return 0, false
		}
		orch.SetMode(m)
		ack.Mode = m.String()
	case CommandRotation:
		if cmd.Rotation == nil {
			lc.sendError("invalid_request", "rotation requires a value")
			return 0, false
		}
		lc.send(ack)
		return *cmd.Rotation, true
	case CommandImport:
		if err := s.importLive(sess, cmd.Image); err != nil {
			lc.sendError("invalid_image", err.Error())
			return 0, false
		}
	case CommandState:
		st := orch.State()
		lc.send(LiveMessage{Type: "state", State: &st})
		return 0, false
	default:
		lc.sendError("unknown_command", "Unsupported command: "+cmd.Command)
		return 0, false
	}
	lc.send(ack)
	return 0, false
}

// importLive scans an imported still in the live session. The result arrives
// with the regular state updates.
func (s *Server) importLive(sess *session.Session, data []byte) error {
	if len(data) == 0 {
		return errors.New("no image data provided")
	}
	img, _, err := utils.DecodeImage(data, "")
	if err != nil {
		return err
	}
	prepared, err := s.importer.Prepare(img)
	if err != nil {
		return err
	}
	_, err = sess.Orchestrator.ScanImage(prepared, true)
	return err
}

// parseLiveCommand accepts {"command": "..."} or a bare command word.
func parseLiveCommand(data []byte) (LiveCommand, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return LiveCommand{}, errors.New("empty command")
	}
	if !strings.HasPrefix(text, "{") {
		return LiveCommand{Command: strings.ToLower(text)}, nil
	}
	var cmd LiveCommand
	if err := json.Unmarshal([]byte(text), &cmd); err != nil {
		return LiveCommand{}, err
	}
	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))
	return cmd, nil
}
