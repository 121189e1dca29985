package meeting

import (
	"sync"
	"time"
)

// Participant is the snapshot of a member kept inside a session for
// display and broadcast.
type Participant struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"userName"`
	Role        string    `json:"userRole"`
	Language    string    `json:"language"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// ChatMessage is broadcast once to a whole session. Recipients pick their
// own language from Translations and fall back to OriginalText.
type ChatMessage struct {
	ID                 string            `json:"id"`
	SessionID          string            `json:"sessionId"`
	SenderConnectionID string            `json:"senderConnectionId"`
	SenderID           string            `json:"senderId"`
	SenderName         string            `json:"senderName"`
	SenderRole         string            `json:"senderRole"`
	OriginalText       string            `json:"originalText"`
	OriginalLanguage   string            `json:"originalLanguage"`
	Translations       map[string]string `json:"translations"`
	Timestamp          time.Time         `json:"timestamp"`
}

// Client is the outbound side of one live connection. Frames are queued
// and drained by a single writer goroutine.
type Client struct {
	ID        string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client with an outbound queue of the given size
func NewClient(id string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Client{
		ID:   id,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// Deliver queues a frame without blocking. It returns false when the
// client is closed or its queue is full.
func (c *Client) Deliver(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Outbound is drained by the connection writer.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client as gone; it is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Recipient is a member snapshot taken under the registry lock.
type Recipient struct {
	ConnectionID string
	Participant  Participant
}
