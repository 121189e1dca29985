package meeting

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"consultation-relay/internal/language"
)

type connection struct {
	client    *Client
	sessionID string
	language  string
}

type member struct {
	participant Participant
	seq         uint64
}

type session struct {
	id         string
	members    map[string]*member // connectionId -> member
	transcript []ChatMessage
}

// Registry tracks live connections and groups them into sessions.
// A session exists only while it has members.
type Registry struct {
	mu              sync.RWMutex
	connections     map[string]*connection
	sessions        map[string]*session
	seq             uint64
	defaultLanguage string
	transcriptLimit int
	log             *slog.Logger
	now             func() time.Time
}

// NewRegistry creates an empty registry. transcriptLimit bounds the chat
// history kept per session; zero disables it.
func NewRegistry(defaultLanguage string, transcriptLimit int, log *slog.Logger) *Registry {
	return &Registry{
		connections:     make(map[string]*connection),
		sessions:        make(map[string]*session),
		defaultLanguage: language.OrDefault(defaultLanguage, language.Default),
		transcriptLimit: transcriptLimit,
		log:             log,
		now:             time.Now,
	}
}

// JoinResult describes the effect of a join.
type JoinResult struct {
	Participant Participant
	// Others are the members that were already in the session.
	Others []Recipient
	// Previous is set when the connection had to leave another session first.
	Previous *LeaveResult
}

// LeaveResult describes the effect of a leave.
type LeaveResult struct {
	SessionID   string
	Participant Participant
	Remaining   []Recipient
	Closed      bool
	Transcript  []ChatMessage
}

// Connect registers a live connection with the default language.
func (r *Registry) Connect(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[client.ID] = &connection{client: client, language: r.defaultLanguage}
	r.log.Debug("connection registered", "connection", client.ID, "total", len(r.connections))
}

// Disconnect leaves the current session and forgets the connection
// together with its language preference.
func (r *Registry) Disconnect(connID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, left := r.leaveLocked(connID)
	delete(r.connections, connID)
	r.log.Debug("connection removed", "connection", connID, "total", len(r.connections))
	return result, left
}

// Join puts the connection into sessionID, leaving any other session
// first. Unknown connections and empty session ids are ignored.
func (r *Registry) Join(connID, sessionID string, participant Participant) (JoinResult, bool) {
	if sessionID == "" {
		return JoinResult{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connID]
	if !ok {
		return JoinResult{}, false
	}

	var result JoinResult
	if conn.sessionID != "" && conn.sessionID != sessionID {
		previous, _ := r.leaveLocked(connID)
		result.Previous = &previous
	}

	s, exists := r.sessions[sessionID]
	if !exists {
		s = &session{id: sessionID, members: make(map[string]*member)}
		r.sessions[sessionID] = s
		r.log.Info("session created", "session", sessionID)
	}

	participant.Language = language.OrDefault(participant.Language, r.defaultLanguage)
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = r.now()
	}

	if existing, rejoin := s.members[connID]; rejoin {
		existing.participant = participant
	} else {
		r.seq++
		s.members[connID] = &member{participant: participant, seq: r.seq}
	}
	conn.sessionID = sessionID
	conn.language = participant.Language

	result.Participant = participant
	result.Others = recipientsLocked(s, connID)
	r.log.Info("participant joined session",
		"session", sessionID, "user", participant.UserID, "language", participant.Language, "total", len(s.members))
	return result, true
}

// Leave removes the connection from its session. Calling it on a
// connection without a session is a no-op.
func (r *Registry) Leave(connID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID)
}

func (r *Registry) leaveLocked(connID string) (LeaveResult, bool) {
	conn, ok := r.connections[connID]
	if !ok || conn.sessionID == "" {
		return LeaveResult{}, false
	}

	sessionID := conn.sessionID
	conn.sessionID = ""

	s, exists := r.sessions[sessionID]
	if !exists {
		return LeaveResult{}, false
	}
	m, isMember := s.members[connID]
	if !isMember {
		return LeaveResult{}, false
	}
	delete(s.members, connID)

	result := LeaveResult{
		SessionID:   sessionID,
		Participant: m.participant,
		Remaining:   recipientsLocked(s, ""),
	}
	r.log.Info("participant left session", "session", sessionID, "user", m.participant.UserID, "remaining", len(s.members))

	if len(s.members) == 0 {
		delete(r.sessions, sessionID)
		result.Closed = true
		result.Transcript = s.transcript
		r.log.Info("session is empty - removed", "session", sessionID)
	}
	return result, true
}

// SetLanguage changes the connection language and the participant
// snapshot. Unsupported codes are ignored.
func (r *Registry) SetLanguage(connID, lang string) (Recipient, string, bool) {
	lang = language.Normalize(lang)
	if !language.IsSupported(lang) {
		return Recipient{}, "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connID]
	if !ok {
		return Recipient{}, "", false
	}
	conn.language = lang

	recipient := Recipient{ConnectionID: connID, Participant: Participant{Language: lang}}
	if s, exists := r.sessions[conn.sessionID]; exists {
		if m, isMember := s.members[connID]; isMember {
			m.participant.Language = lang
			recipient.Participant = m.participant
		}
	}
	return recipient, conn.sessionID, true
}

// Language returns the connection language, or "" for unknown connections.
func (r *Registry) Language(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.connections[connID]; ok {
		return conn.language
	}
	return ""
}

// Member returns the connection's participant snapshot and session.
func (r *Registry) Member(connID string) (Recipient, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[connID]
	if !ok || conn.sessionID == "" {
		return Recipient{}, "", false
	}
	s, exists := r.sessions[conn.sessionID]
	if !exists {
		return Recipient{}, "", false
	}
	m, isMember := s.members[connID]
	if !isMember {
		return Recipient{}, "", false
	}
	return Recipient{ConnectionID: connID, Participant: m.participant}, conn.sessionID, true
}

// Members returns the participants of a session in join order. Unknown
// sessions yield an empty slice.
func (r *Registry) Members(sessionID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return []Participant{}
	}
	recipients := recipientsLocked(s, "")
	participants := make([]Participant, 0, len(recipients))
	for _, recipient := range recipients {
		participants = append(participants, recipient.Participant)
	}
	return participants
}

// Recipients returns the members of a session except excludeConnID.
func (r *Registry) Recipients(sessionID, excludeConnID string) []Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return []Recipient{}
	}
	return recipientsLocked(s, excludeConnID)
}

// FindUser looks up the connection of userID inside a session. When the
// user is joined from several connections the most recent join wins.
func (r *Registry) FindUser(sessionID, userID string) (Recipient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return Recipient{}, false
	}

	var (
		found  Recipient
		latest uint64
		ok     bool
	)
	for connID, m := range s.members {
		if m.participant.UserID != userID || (ok && m.seq < latest) {
			continue
		}
		found = Recipient{ConnectionID: connID, Participant: m.participant}
		latest = m.seq
		ok = true
	}
	return found, ok
}

// Deliver sends data to a connection if it is still registered.
func (r *Registry) Deliver(connID string, data []byte) bool {
	r.mu.RLock()
	conn, ok := r.connections[connID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if !conn.client.Deliver(data) {
		r.log.Warn("dropping frame for slow or closed connection", "connection", connID)
		return false
	}
	return true
}

// RecordMessage appends a broadcast message to the session transcript.
func (r *Registry) RecordMessage(sessionID string, msg ChatMessage) {
	if r.transcriptLimit <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return
	}
	s.transcript = append(s.transcript, msg)
	if overflow := len(s.transcript) - r.transcriptLimit; overflow > 0 {
		s.transcript = append([]ChatMessage(nil), s.transcript[overflow:]...)
	}
}

// HasSession reports whether a session is live.
func (r *Registry) HasSession(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sessions[sessionID]
	return exists
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func recipientsLocked(s *session, excludeConnID string) []Recipient {
	type ordered struct {
		recipient Recipient
		seq       uint64
	}
	members := make([]ordered, 0, len(s.members))
	for connID, m := range s.members {
		if connID == excludeConnID {
			continue
		}
		members = append(members, ordered{
			recipient: Recipient{ConnectionID: connID, Participant: m.participant},
			seq:       m.seq,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].seq < members[j].seq
	})

	recipients := make([]Recipient, 0, len(members))
	for _, m := range members {
		recipients = append(recipients, m.recipient)
	}
	return recipients
}
