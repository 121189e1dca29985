package meeting

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// connect registers a client and joins it to sessionID.
func connect(t *testing.T, registry *Registry, connID, sessionID, userID, lang string) *Client {
	t.Helper()
	client := NewClient(connID, 32)
	registry.Connect(client)
	_, ok := registry.Join(connID, sessionID, Participant{UserID: userID, DisplayName: userID, Role: "client", Language: lang})
	require.True(t, ok)
	return client
}

func nextFrame(t *testing.T, client *Client) Envelope {
	t.Helper()
	select {
	case data := <-client.Outbound():
		var envelope Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		return envelope
	case <-time.After(time.Second):
		t.Fatalf("no frame delivered to %s", client.ID)
	}
	return Envelope{}
}

func nextEvent[T any](t *testing.T, client *Client, event string) T {
	t.Helper()
	envelope := nextFrame(t, client)
	require.Equal(t, event, envelope.Event)
	var payload T
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	return payload
}

func requireNoFrame(t *testing.T, client *Client) {
	t.Helper()
	select {
	case data := <-client.Outbound():
		t.Fatalf("unexpected frame for %s: %s", client.ID, data)
	default:
	}
}
