package meeting

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// NewUpgrader accepts connections from the given origins; an empty list
// allows every origin.
func NewUpgrader(allowedOrigins []string, log *slog.Logger) *websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		log.Warn("ALLOWED_ORIGINS not set - allowing all origins (development mode)")
	}
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == origin {
					return true
				}
			}
			log.Warn("rejected websocket connection from unauthorized origin", "origin", origin)
			return false
		},
	}
}

// WebSocketHandler upgrades requests and serves them until the socket
// closes or ctx ends.
func (s *Server) WebSocketHandler(ctx context.Context, upgrader *websocket.Upgrader, bufferSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Error("websocket upgrade error", "error", err)
			return
		}
		s.HandleWebSocket(ctx, conn, bufferSize)
	}
}

// HandleWebSocket runs one connection: a writer goroutine drains the
// client queue while this goroutine reads and dispatches events. The
// socket is closed when ctx ends; work already dispatched keeps running
// on a context detached from ctx so it can finish during shutdown.
func (s *Server) HandleWebSocket(ctx context.Context, conn *websocket.Conn, bufferSize int) {
	if !s.trackHandler() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer s.handlers.Done()

	client := NewClient(uuid.NewString(), bufferSize)
	log := s.log.With("connection", client.ID)
	log.Info("websocket connected", "remote", conn.RemoteAddr().String())

	s.Connect(client)
	taskCtx := context.WithoutCancel(ctx)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writePump(conn, client, log)
	}()

	go func() {
		select {
		case <-ctx.Done():
			log.Debug("closing websocket on shutdown")
			// The writer sends the close frame, then the reader is unblocked.
			client.Close()
			<-writerDone
			conn.Close()
		case <-client.Done():
		}
	}()

	defer func() {
		s.Dispatch(taskCtx, client, EventDisconnect, nil)
		<-writerDone
		conn.Close()
		log.Info("websocket disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.HandleFrame(taskCtx, client, data)
	}
}

func writePump(conn *websocket.Conn, client *Client, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("websocket write error", "error", err)
				client.Close()
				// Unblocks the reader.
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				conn.Close()
				return
			}
		case <-client.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
