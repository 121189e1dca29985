package meeting

import (
	"encoding/json"
	"time"
)

// EventKind is the closed set of inbound events.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoinSession
	EventLeaveSession
	EventSetLanguage
	EventOffer
	EventAnswer
	EventICECandidate
	EventChatMessage
	EventTranslateRequest
	EventSpeechTranslation
	// EventDisconnect is raised by the transport when the socket closes;
	// it is never parsed from the wire.
	EventDisconnect
)

var eventNames = map[EventKind]string{
	EventJoinSession:       "join-session",
	EventLeaveSession:      "leave-session",
	EventSetLanguage:       "set-language",
	EventOffer:             "offer",
	EventAnswer:            "answer",
	EventICECandidate:      "ice-candidate",
	EventChatMessage:       "chat-message",
	EventTranslateRequest:  "translate-request",
	EventSpeechTranslation: "speech-translation",
	EventDisconnect:        "disconnect",
}

var wireKinds = func() map[string]EventKind {
	kinds := make(map[string]EventKind, len(eventNames))
	for kind, name := range eventNames {
		if kind == EventDisconnect {
			continue
		}
		kinds[name] = kind
	}
	return kinds
}()

// ParseEventKind maps a wire name to its kind; unknown names map to EventUnknown.
func ParseEventKind(name string) EventKind {
	return wireKinds[name]
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Outbound event names.
const (
	outSessionJoined      = "session-joined"
	outUserJoined         = "user-joined"
	outUserLeft           = "user-left"
	outLanguageUpdated    = "language-updated"
	outParticipantUpdated = "participant-updated"
	outChatMessage        = "chat-message"
	outSpeechTranslated   = "speech-translated"
	outTranslateResponse  = "translate-response"
	outTranslateError     = "translate-error"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// --- Inbound payloads ---

type JoinSessionPayload struct {
	SessionID    string `json:"sessionId" validate:"required,max=128"`
	UserID       string `json:"userId" validate:"required,max=128"`
	UserName     string `json:"userName" validate:"max=256"`
	UserRole     string `json:"userRole" validate:"max=64"`
	UserLanguage string `json:"userLanguage"`
}

type SetLanguagePayload struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language" validate:"required"`
}

// SignalPayload carries one of offer, answer or candidate depending on the
// event kind. The contents are never interpreted.
type SignalPayload struct {
	SessionID    string          `json:"sessionId" validate:"required"`
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

func (p SignalPayload) body(kind EventKind) json.RawMessage {
	switch kind {
	case EventOffer:
		return p.Offer
	case EventAnswer:
		return p.Answer
	case EventICECandidate:
		return p.Candidate
	}
	return nil
}

type ChatBody struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type ChatPayload struct {
	SessionID string   `json:"sessionId" validate:"required"`
	Message   ChatBody `json:"message"`
}

type TranslateRequestPayload struct {
	RequestID  string `json:"requestId"`
	Text       string `json:"text" validate:"required,max=4000"`
	TargetLang string `json:"targetLang" validate:"required"`
	SourceLang string `json:"sourceLang"`
}

type SpeechPayload struct {
	SessionID  string `json:"sessionId" validate:"required"`
	Text       string `json:"text" validate:"required,max=4000"`
	SourceLang string `json:"sourceLang"`
	IsFinal    bool   `json:"isFinal"`
}

// --- Outbound payloads ---

type sessionJoinedEvent struct {
	SessionID    string        `json:"sessionId"`
	Self         Participant   `json:"self"`
	Participants []Participant `json:"participants"`
}

type participantEvent struct {
	SessionID string `json:"sessionId"`
	Participant
}

type userLeftEvent struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type languageUpdatedEvent struct {
	Language     string `json:"language"`
	LanguageName string `json:"languageName"`
}

type signalEvent struct {
	SessionID  string          `json:"sessionId"`
	FromUserID string          `json:"fromUserId"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

type speechTranslatedEvent struct {
	SessionID      string    `json:"sessionId"`
	FromUserID     string    `json:"fromUserId"`
	FromUserName   string    `json:"fromUserName"`
	TranslatedText string    `json:"translatedText"`
	OriginalText   string    `json:"originalText"`
	SourceLang     string    `json:"sourceLang"`
	TargetLang     string    `json:"targetLang"`
	IsFinal        bool      `json:"isFinal"`
	Timestamp      time.Time `json:"timestamp"`
}

type translateResponseEvent struct {
	RequestID        string `json:"requestId,omitempty"`
	OriginalText     string `json:"originalText"`
	TranslatedText   string `json:"translatedText"`
	TargetLang       string `json:"targetLang"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
}

type translateErrorEvent struct {
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error"`
}
