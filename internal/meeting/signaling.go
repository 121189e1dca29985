package meeting

import (
	"encoding/json"
	"log/slog"
)

// Relay forwards WebRTC negotiation payloads between two members of the
// same session without looking inside them.
type Relay struct {
	registry *Registry
	log      *slog.Logger
}

// NewRelay creates a signaling relay over registry.
func NewRelay(registry *Registry, log *slog.Logger) *Relay {
	return &Relay{registry: registry, log: log}
}

// Forward sends payload from fromConnID to toUserID tagged with the
// sender's user id. A sender outside the session, a missing peer or a
// non-signaling kind drops the payload.
func (r *Relay) Forward(sessionID, fromConnID, toUserID string, kind EventKind, payload json.RawMessage) bool {
	if kind != EventOffer && kind != EventAnswer && kind != EventICECandidate {
		return false
	}

	sender, senderSession, ok := r.registry.Member(fromConnID)
	if !ok || senderSession != sessionID {
		r.log.Debug("signal from connection outside session dropped", "session", sessionID, "connection", fromConnID)
		return false
	}

	target, ok := r.registry.FindUser(sessionID, toUserID)
	if !ok || target.ConnectionID == fromConnID {
		r.log.Debug("signal target not in session", "session", sessionID, "kind", kind, "target", toUserID)
		return false
	}

	event := signalEvent{SessionID: sessionID, FromUserID: sender.Participant.UserID}
	switch kind {
	case EventOffer:
		event.Offer = payload
	case EventAnswer:
		event.Answer = payload
	case EventICECandidate:
		event.Candidate = payload
	}

	data, err := encode(kind.String(), event)
	if err != nil {
		r.log.Warn("signal payload could not be encoded", "kind", kind, "error", err)
		return false
	}
	return r.registry.Deliver(target.ConnectionID, data)
}
