package chat

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The chat is an open room with no cookies or credentials to protect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn maps each outbound line to one text frame. An inbound frame may
// carry several lines; they are handed out one per ReadLine.
type wsConn struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration
	pending      []string
}

func newWSConn(conn *websocket.Conn, remote string, maxLine int, writeTimeout time.Duration) LineConn {
	if maxLine > 0 {
		conn.SetReadLimit(int64(maxLine))
	}
	return &wsConn{conn: conn, remote: remote, writeTimeout: writeTimeout}
}

var frameTerminators = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func (c *wsConn) ReadLine() (string, error) {
	if len(c.pending) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// A browser going away often sends no status at all, or just drops.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				return "", io.EOF
			}
			return "", err
		}
		c.pending = splitFrame(string(data))
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return checkText(line)
}

// splitFrame breaks a frame on "\n", "\r\n" or a lone "\r". A trailing
// terminator does not add an empty line; an empty frame is one empty line.
func splitFrame(text string) []string {
	text = frameTerminators.Replace(text)
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

func (c *wsConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) RemoteAddr() string { return c.remote }

// WebSocketHandler upgrades the request and runs the client as a chat
// connection until it disconnects.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if err := s.Serve(newWSConn(conn, r.RemoteAddr, s.cfg.MaxLineLength, s.cfg.WriteTimeout), "ws"); err != nil {
		s.logger.Info("websocket client refused", "remote", r.RemoteAddr, "error", err)
	}
}
