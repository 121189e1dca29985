package meeting

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"consultation-relay/internal/translate"
)

func TestWebSocket_SessionRoundTrip(t *testing.T) {
	req := require.New(t)
	server := NewServer(translate.Stub{}, Options{DefaultLanguage: "ru", TranslateTimeout: time.Second}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := httptest.NewServer(server.WebSocketHandler(ctx, NewUpgrader(nil, testLogger()), 16))
	defer httpServer.Close()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		req.NoError(err)
		return conn
	}
	send := func(conn *websocket.Conn, event, data string) {
		req.NoError(conn.WriteMessage(websocket.TextMessage, frame(event, data)))
	}
	read := func(conn *websocket.Conn, event string) json.RawMessage {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		var envelope Envelope
		req.NoError(conn.ReadJSON(&envelope))
		req.Equal(event, envelope.Event)
		return envelope.Data
	}

	alice := dial()
	defer alice.Close()
	bob := dial()

	send(alice, "join-session", `{"sessionId":"S1","userId":"alice","userLanguage":"ru"}`)
	read(alice, outSessionJoined)
	send(bob, "join-session", `{"sessionId":"S1","userId":"bob","userLanguage":"en"}`)
	read(bob, outSessionJoined)
	read(alice, outUserJoined)

	send(alice, "chat-message", `{"sessionId":"S1","message":{"text":"привет"}}`)
	var chat ChatMessage
	req.NoError(json.Unmarshal(read(bob, outChatMessage), &chat))
	req.Equal("[en] привет", chat.Translations["en"])
	req.NoError(json.Unmarshal(read(alice, outChatMessage), &chat))
	req.Equal("привет", chat.OriginalText)

	req.NoError(bob.Close())
	var left userLeftEvent
	req.NoError(json.Unmarshal(read(alice, outUserLeft), &left))
	req.Equal("bob", left.UserID)
	req.Eventually(func() bool {
		return server.Registry().ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	req := require.New(t)
	upgrader := NewUpgrader([]string{"https://clinic.example"}, testLogger())

	allowed := httptest.NewRequest("GET", "/ws", nil)
	allowed.Header.Set("Origin", "https://clinic.example")
	req.True(upgrader.CheckOrigin(allowed))

	denied := httptest.NewRequest("GET", "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example")
	req.False(upgrader.CheckOrigin(denied))
}

func TestWebSocket_ContextCancelClosesConnectionsAndArchives(t *testing.T) {
	req := require.New(t)
	archiver := &recordingArchiver{}
	server := NewServer(translate.Stub{}, Options{
		DefaultLanguage:  "ru",
		TranslateTimeout: time.Second,
		TranscriptLimit:  10,
		Archiver:         archiver,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := httptest.NewServer(server.WebSocketHandler(ctx, NewUpgrader(nil, testLogger()), 16))
	defer httpServer.Close()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		req.NoError(err)
		return conn
	}
	send := func(conn *websocket.Conn, event, data string) {
		req.NoError(conn.WriteMessage(websocket.TextMessage, frame(event, data)))
	}
	read := func(conn *websocket.Conn, event string) {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		var envelope Envelope
		req.NoError(conn.ReadJSON(&envelope))
		req.Equal(event, envelope.Event)
	}
	readUntilClosed := func(conn *websocket.Conn, code int) {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				req.True(websocket.IsCloseError(err, code), "expected close %d, got %v", code, err)
				return
			}
		}
	}

	alice := dial()
	defer alice.Close()
	bob := dial()
	defer bob.Close()

	send(alice, "join-session", `{"sessionId":"S1","userId":"alice","userLanguage":"ru"}`)
	read(alice, outSessionJoined)
	send(bob, "join-session", `{"sessionId":"S1","userId":"bob","userLanguage":"en"}`)
	read(bob, outSessionJoined)
	read(alice, outUserJoined)

	send(alice, "chat-message", `{"sessionId":"S1","message":{"text":"до завтра"}}`)
	read(alice, outChatMessage)
	read(bob, outChatMessage)

	cancel()
	readUntilClosed(alice, websocket.CloseNormalClosure)
	readUntilClosed(bob, websocket.CloseNormalClosure)

	done := make(chan struct{})
	go func() {
		server.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not wait for handlers to finish")
	}

	req.Zero(server.Registry().ConnectionCount())
	req.Zero(server.Registry().SessionCount())

	archiver.mu.Lock()
	transcript := archiver.sessions["S1"]
	archiver.mu.Unlock()
	req.Len(transcript, 1)
	req.Equal("до завтра", transcript[0].OriginalText)

	late := dial()
	defer late.Close()
	readUntilClosed(late, websocket.CloseGoingAway)
	req.Zero(server.Registry().ConnectionCount())
}
