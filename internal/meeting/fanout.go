package meeting

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"consultation-relay/internal/language"
	"consultation-relay/internal/translate"
)

// Fanout delivers chat and speech text to session members, translated
// into each member's language.
type Fanout struct {
	registry   *Registry
	translator translate.Translator
	timeout    time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// NewFanout creates a fanout over registry using translator.
func NewFanout(registry *Registry, translator translate.Translator, timeout time.Duration, log *slog.Logger) *Fanout {
	return &Fanout{
		registry:   registry,
		translator: translator,
		timeout:    timeout,
		log:        log,
		now:        time.Now,
	}
}

// BroadcastChat translates text once per distinct recipient language and
// broadcasts a single message to the whole session, sender included.
// A language whose translation failed is absent from Translations.
func (f *Fanout) BroadcastChat(ctx context.Context, senderConnID, sessionID, text string) (ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, false
	}

	sender, senderSession, ok := f.registry.Member(senderConnID)
	if !ok || senderSession != sessionID {
		f.log.Debug("chat from connection outside session dropped", "session", sessionID, "connection", senderConnID)
		return ChatMessage{}, false
	}
	sourceLang := sender.Participant.Language

	others := f.registry.Recipients(sessionID, senderConnID)
	targets := lo.Uniq(lo.FilterMap(others, func(r Recipient, _ int) (string, bool) {
		return r.Participant.Language, r.Participant.Language != sourceLang
	}))

	msg := ChatMessage{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		SenderConnectionID: senderConnID,
		SenderID:           sender.Participant.UserID,
		SenderName:         sender.Participant.DisplayName,
		SenderRole:         sender.Participant.Role,
		OriginalText:       text,
		OriginalLanguage:   sourceLang,
		Translations:       f.translateParallel(ctx, text, sourceLang, targets),
		Timestamp:          f.now(),
	}

	data, err := encode(outChatMessage, msg)
	if err != nil {
		f.log.Error("error marshaling chat message", "session", sessionID, "error", err)
		return ChatMessage{}, false
	}

	f.registry.RecordMessage(sessionID, msg)

	// Membership may have changed while translating.
	for _, recipient := range f.registry.Recipients(sessionID, "") {
		f.registry.Deliver(recipient.ConnectionID, data)
	}
	return msg, true
}

// RelaySpeech sends a speech fragment to every other member individually.
// Members sharing the source language get the text verbatim without a
// translator call; a failed translation falls back to the original text.
// It returns the number of frames delivered.
func (f *Fanout) RelaySpeech(ctx context.Context, senderConnID, sessionID, text, sourceLang string, isFinal bool) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	sender, senderSession, ok := f.registry.Member(senderConnID)
	if !ok || senderSession != sessionID {
		f.log.Debug("speech from connection outside session dropped", "session", sessionID, "connection", senderConnID)
		return 0
	}
	sourceLang = language.OrDefault(sourceLang, sender.Participant.Language)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)

	for _, recipient := range f.registry.Recipients(sessionID, senderConnID) {
		targetLang := recipient.Participant.Language

		if targetLang == sourceLang {
			if f.deliverSpeech(sessionID, sender, recipient.ConnectionID, text, text, sourceLang, targetLang, isFinal) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
			continue
		}

		wg.Add(1)
		go func(connID, targetLang string) {
			defer wg.Done()

			translated := text
			result, err := f.translate(ctx, text, targetLang, sourceLang)
			if err != nil {
				f.log.Warn("speech translation failed, forwarding original",
					"session", sessionID, "target", targetLang, "error", err)
			} else if result.Text != "" {
				translated = result.Text
			}

			if f.deliverSpeech(sessionID, sender, connID, translated, text, sourceLang, targetLang, isFinal) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}(recipient.ConnectionID, targetLang)
	}

	wg.Wait()
	return delivered
}

func (f *Fanout) deliverSpeech(sessionID string, sender Recipient, connID, translated, original, sourceLang, targetLang string, isFinal bool) bool {
	data, err := encode(outSpeechTranslated, speechTranslatedEvent{
		SessionID:      sessionID,
		FromUserID:     sender.Participant.UserID,
		FromUserName:   sender.Participant.DisplayName,
		TranslatedText: translated,
		OriginalText:   original,
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		IsFinal:        isFinal,
		Timestamp:      f.now(),
	})
	if err != nil {
		f.log.Error("error marshaling speech translation", "session", sessionID, "error", err)
		return false
	}
	return f.registry.Deliver(connID, data)
}

// translateParallel translates text to every target language concurrently
// and keeps only the successful results.
func (f *Fanout) translateParallel(ctx context.Context, text, sourceLang string, targetLangs []string) map[string]string {
	results := make(map[string]string, len(targetLangs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, targetLang := range targetLangs {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()

			result, err := f.translate(ctx, text, lang, sourceLang)
			if err != nil {
				f.log.Warn("chat translation failed", "source", sourceLang, "target", lang, "error", err)
				return
			}
			if result.Text == "" {
				return
			}

			mu.Lock()
			results[lang] = result.Text
			mu.Unlock()
		}(targetLang)
	}

	wg.Wait()
	return results
}

func (f *Fanout) translate(ctx context.Context, text, targetLang, sourceLang string) (translate.Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.translator.Translate(ctx, text, targetLang, sourceLang)
}
