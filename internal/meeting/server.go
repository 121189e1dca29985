package meeting

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"consultation-relay/internal/language"
	"consultation-relay/internal/translate"
)

// TranscriptArchiver stores the chat history of a closed session.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, sessionID string, messages []ChatMessage) error
}

// Options configures a Server.
type Options struct {
	DefaultLanguage  string
	TranslateTimeout time.Duration
	TranscriptLimit  int
	Archiver         TranscriptArchiver
}

// Server turns inbound events into registry, relay and fanout operations.
type Server struct {
	registry   *Registry
	relay      *Relay
	fanout     *Fanout
	translator translate.Translator
	archiver   TranscriptArchiver
	timeout    time.Duration
	validate   *validator.Validate
	log        *slog.Logger
	tasks      sync.WaitGroup

	mu       sync.Mutex
	closing  bool
	handlers sync.WaitGroup
}

// NewServer creates a server with its own registry, relay and fanout.
func NewServer(translator translate.Translator, opts Options, log *slog.Logger) *Server {
	transcriptLimit := opts.TranscriptLimit
	if opts.Archiver == nil {
		transcriptLimit = 0
	}
	registry := NewRegistry(opts.DefaultLanguage, transcriptLimit, log)

	return &Server{
		registry:   registry,
		relay:      NewRelay(registry, log),
		fanout:     NewFanout(registry, translator, opts.TranslateTimeout, log),
		translator: translator,
		archiver:   opts.Archiver,
		timeout:    opts.TranslateTimeout,
		validate:   validator.New(),
		log:        log,
	}
}

// Registry returns the registry the server dispatches into.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Connect registers a new client.
func (s *Server) Connect(client *Client) {
	s.registry.Connect(client)
}

// HandleFrame decodes one inbound frame and dispatches it.
func (s *Server) HandleFrame(ctx context.Context, client *Client, frame []byte) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		s.log.Warn("invalid json frame", "connection", client.ID, "error", err)
		return
	}

	kind := ParseEventKind(envelope.Event)
	if kind == EventUnknown {
		s.log.Debug("unknown event dropped", "connection", client.ID, "event", envelope.Event)
		return
	}
	s.Dispatch(ctx, client, kind, envelope.Data)
}

// Dispatch handles one event. Registry work runs inline; translation runs
// in tracked goroutines so the caller can keep reading.
func (s *Server) Dispatch(ctx context.Context, client *Client, kind EventKind, data json.RawMessage) {
	switch kind {
	case EventJoinSession:
		var p JoinSessionPayload
		if s.decode(client, kind, data, &p) {
			s.join(ctx, client, p)
		}
	case EventLeaveSession:
		if result, left := s.registry.Leave(client.ID); left {
			s.afterLeave(ctx, result)
		}
	case EventSetLanguage:
		var p SetLanguagePayload
		if s.decode(client, kind, data, &p) {
			s.setLanguage(client, p)
		}
	case EventOffer, EventAnswer, EventICECandidate:
		var p SignalPayload
		if s.decode(client, kind, data, &p) {
			s.relay.Forward(p.SessionID, client.ID, p.TargetUserID, kind, p.body(kind))
		}
	case EventChatMessage:
		var p ChatPayload
		if s.decode(client, kind, data, &p) {
			s.spawn(func() {
				s.fanout.BroadcastChat(ctx, client.ID, p.SessionID, p.Message.Text)
			})
		}
	case EventSpeechTranslation:
		var p SpeechPayload
		if s.decode(client, kind, data, &p) {
			s.spawn(func() {
				s.fanout.RelaySpeech(ctx, client.ID, p.SessionID, p.Text, p.SourceLang, p.IsFinal)
			})
		}
	case EventTranslateRequest:
		s.translateRequest(ctx, client, data)
	case EventDisconnect:
		s.Disconnect(ctx, client)
	case EventUnknown:
		s.log.Debug("unknown event dropped", "connection", client.ID)
	}
}

// Disconnect removes the client and tells the rest of its session.
func (s *Server) Disconnect(ctx context.Context, client *Client) {
	result, left := s.registry.Disconnect(client.ID)
	client.Close()
	if left {
		s.afterLeave(ctx, result)
	}
}

// Wait blocks until every in-flight translation task has finished.
func (s *Server) Wait() {
	s.tasks.Wait()
}

// Shutdown refuses new websocket connections, waits for the open ones to
// close and then for their remaining tasks. The connections close
// themselves when the ctx given to WebSocketHandler ends.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.handlers.Wait()
	s.tasks.Wait()
}

// trackHandler registers a websocket handler unless Shutdown has begun.
func (s *Server) trackHandler() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.handlers.Add(1)
	return true
}

func (s *Server) join(ctx context.Context, client *Client, p JoinSessionPayload) {
	result, ok := s.registry.Join(client.ID, p.SessionID, Participant{
		UserID:      p.UserID,
		DisplayName: p.UserName,
		Role:        p.UserRole,
		Language:    p.UserLanguage,
	})
	if !ok {
		return
	}
	if result.Previous != nil {
		s.afterLeave(ctx, *result.Previous)
	}

	s.send(client.ID, outSessionJoined, sessionJoinedEvent{
		SessionID:    p.SessionID,
		Self:         result.Participant,
		Participants: s.registry.Members(p.SessionID),
	})
	s.broadcast(result.Others, outUserJoined, participantEvent{SessionID: p.SessionID, Participant: result.Participant})
}

func (s *Server) setLanguage(client *Client, p SetLanguagePayload) {
	updated, sessionID, ok := s.registry.SetLanguage(client.ID, p.Language)
	if !ok {
		s.log.Debug("unsupported language ignored", "connection", client.ID, "language", p.Language)
		return
	}

	lang := updated.Participant.Language
	s.send(client.ID, outLanguageUpdated, languageUpdatedEvent{Language: lang, LanguageName: language.Name(lang)})
	if sessionID != "" {
		s.broadcast(s.registry.Recipients(sessionID, client.ID), outParticipantUpdated,
			participantEvent{SessionID: sessionID, Participant: updated.Participant})
	}
}

func (s *Server) translateRequest(ctx context.Context, client *Client, data json.RawMessage) {
	var p TranslateRequestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.send(client.ID, outTranslateError, translateErrorEvent{Error: "invalid payload"})
		return
	}
	if err := s.validate.Struct(p); err != nil {
		s.send(client.ID, outTranslateError, translateErrorEvent{RequestID: p.RequestID, Error: "text and targetLang are required"})
		return
	}
	target := language.Normalize(p.TargetLang)
	if !language.IsSupported(target) {
		s.send(client.ID, outTranslateError, translateErrorEvent{RequestID: p.RequestID, Error: "unsupported target language"})
		return
	}
	source := language.Normalize(p.SourceLang)

	s.spawn(func() {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		result, err := s.translator.Translate(callCtx, p.Text, target, source)
		if err != nil {
			s.log.Warn("direct translation failed", "connection", client.ID, "target", target, "error", err)
			s.send(client.ID, outTranslateError, translateErrorEvent{RequestID: p.RequestID, Error: "translation failed"})
			return
		}
		s.send(client.ID, outTranslateResponse, translateResponseEvent{
			RequestID:        p.RequestID,
			OriginalText:     p.Text,
			TranslatedText:   result.Text,
			TargetLang:       target,
			DetectedLanguage: result.DetectedLanguage,
		})
	})
}

func (s *Server) afterLeave(ctx context.Context, result LeaveResult) {
	s.broadcast(result.Remaining, outUserLeft, userLeftEvent{
		SessionID: result.SessionID,
		UserID:    result.Participant.UserID,
		UserName:  result.Participant.DisplayName,
	})

	if !result.Closed || s.archiver == nil || len(result.Transcript) == 0 {
		return
	}
	s.spawn(func() {
		if err := s.archiver.ArchiveTranscript(ctx, result.SessionID, result.Transcript); err != nil {
			s.log.Error("transcript archive failed", "session", result.SessionID, "error", err)
			return
		}
		s.log.Info("transcript archived", "session", result.SessionID, "messages", len(result.Transcript))
	})
}

func (s *Server) decode(client *Client, kind EventKind, data json.RawMessage, payload any) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		s.log.Warn("malformed payload dropped", "connection", client.ID, "event", kind, "error", err)
		return false
	}
	if err := s.validate.Struct(payload); err != nil {
		s.log.Warn("invalid payload dropped", "connection", client.ID, "event", kind, "error", err)
		return false
	}
	return true
}

func (s *Server) send(connID, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		s.log.Error("error marshaling event", "event", event, "error", err)
		return
	}
	s.registry.Deliver(connID, frame)
}

func (s *Server) broadcast(recipients []Recipient, event string, data any) {
	if len(recipients) == 0 {
		return
	}
	frame, err := encode(event, data)
	if err != nil {
		s.log.Error("error marshaling event", "event", event, "error", err)
		return
	}
	for _, recipient := range recipients {
		s.registry.Deliver(recipient.ConnectionID, frame)
	}
}

func (s *Server) spawn(task func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		task()
	}()
}
