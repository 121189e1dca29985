package meeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"consultation-relay/internal/mocks"
	"consultation-relay/internal/translate"
)

func newTestFanout(t *testing.T) (*Registry, *mocks.MockTranslator, *Fanout) {
	ctrl := gomock.NewController(t)
	translator := mocks.NewMockTranslator(ctrl)
	registry := NewRegistry("ru", 0, testLogger())
	return registry, translator, NewFanout(registry, translator, time.Second, testLogger())
}

func TestFanout_BroadcastChat_OneCallPerLanguage(t *testing.T) {
	req := require.New(t)
	registry, translator, fanout := newTestFanout(t)
	a := connect(t, registry, "A", "S1", "alice", "ru")
	b := connect(t, registry, "B", "S1", "bob", "en")
	c := connect(t, registry, "C", "S1", "carol", "en")

	translator.EXPECT().
		Translate(gomock.Any(), "hello", "en", "ru").
		Return(translate.Result{Text: "hi", DetectedLanguage: "ru"}, nil).
		Times(1)

	msg, ok := fanout.BroadcastChat(context.Background(), "A", "S1", "hello")
	req.True(ok)
	req.Equal(map[string]string{"en": "hi"}, msg.Translations)

	for _, client := range []*Client{a, b, c} {
		got := nextEvent[ChatMessage](t, client, outChatMessage)
		req.Equal("hello", got.OriginalText)
		req.Equal("ru", got.OriginalLanguage)
		req.Equal("alice", got.SenderID)
		req.Equal("A", got.SenderConnectionID)
		req.Equal("hi", got.Translations["en"])
		_, hasRussian := got.Translations["ru"]
		req.False(hasRussian)
	}
}

func TestFanout_BroadcastChat_DedupAcrossManyMembers(t *testing.T) {
	req := require.New(t)
	registry, translator, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "ru")
	connect(t, registry, "B", "S1", "bob", "ru")
	connect(t, registry, "C", "S1", "carol", "ru")
	for _, id := range []string{"D", "E", "F", "G"} {
		connect(t, registry, id, "S1", "user-"+id, "en")
	}

	translator.EXPECT().
		Translate(gomock.Any(), "добрый день", "en", "ru").
		Return(translate.Result{Text: "good afternoon"}, nil).
		Times(1)

	msg, ok := fanout.BroadcastChat(context.Background(), "A", "S1", "добрый день")
	req.True(ok)
	req.Len(msg.Translations, 1)
}

func TestFanout_BroadcastChat_NoTranslationWhenEveryoneSharesLanguage(t *testing.T) {
	req := require.New(t)
	registry, _, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "en")
	b := connect(t, registry, "B", "S1", "bob", "en")

	msg, ok := fanout.BroadcastChat(context.Background(), "A", "S1", "hello")
	req.True(ok)
	req.Empty(msg.Translations)
	req.Equal("hello", nextEvent[ChatMessage](t, b, outChatMessage).OriginalText)
}

func TestFanout_BroadcastChat_FailedLanguageIsAbsent(t *testing.T) {
	req := require.New(t)
	registry, translator, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "ru")
	b := connect(t, registry, "B", "S1", "bob", "en")
	c := connect(t, registry, "C", "S1", "carl", "de")

	translator.EXPECT().
		Translate(gomock.Any(), "привет", "en", "ru").
		Return(translate.Result{}, errors.New("provider down"))
	translator.EXPECT().
		Translate(gomock.Any(), "привет", "de", "ru").
		Return(translate.Result{Text: "hallo"}, nil)

	msg, ok := fanout.BroadcastChat(context.Background(), "A", "S1", "привет")
	req.True(ok)
	req.Equal(map[string]string{"de": "hallo"}, msg.Translations)

	req.Equal("привет", nextEvent[ChatMessage](t, b, outChatMessage).OriginalText)
	req.Equal("hallo", nextEvent[ChatMessage](t, c, outChatMessage).Translations["de"])
}

func TestFanout_BroadcastChat_DropsSenderOutsideSession(t *testing.T) {
	req := require.New(t)
	registry, _, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "ru")
	b := connect(t, registry, "B", "S2", "bob", "en")

	_, ok := fanout.BroadcastChat(context.Background(), "A", "S2", "hello")
	req.False(ok)
	_, ok = fanout.BroadcastChat(context.Background(), "A", "S1", "   ")
	req.False(ok)
	requireNoFrame(t, b)
}

func TestFanout_RelaySpeech_SameLanguageIsVerbatim(t *testing.T) {
	req := require.New(t)
	registry, _, fanout := newTestFanout(t)
	a := connect(t, registry, "A", "S1", "alice", "en")
	b := connect(t, registry, "B", "S1", "bob", "en")

	delivered := fanout.RelaySpeech(context.Background(), "A", "S1", "good morning", "en", false)
	req.Equal(1, delivered)

	got := nextEvent[speechTranslatedEvent](t, b, outSpeechTranslated)
	req.Equal("good morning", got.TranslatedText)
	req.Equal("good morning", got.OriginalText)
	req.Equal("en", got.SourceLang)
	req.Equal("en", got.TargetLang)
	req.Equal("alice", got.FromUserID)
	requireNoFrame(t, a)
}

func TestFanout_RelaySpeech_PerRecipientCalls(t *testing.T) {
	req := require.New(t)
	registry, translator, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "ru")
	b := connect(t, registry, "B", "S1", "bob", "en")
	c := connect(t, registry, "C", "S1", "carol", "en")

	translator.EXPECT().
		Translate(gomock.Any(), "привет", "en", "ru").
		Return(translate.Result{Text: "hi"}, nil).
		Times(2)

	delivered := fanout.RelaySpeech(context.Background(), "A", "S1", "привет", "ru", true)
	req.Equal(2, delivered)
	for _, client := range []*Client{b, c} {
		got := nextEvent[speechTranslatedEvent](t, client, outSpeechTranslated)
		req.Equal("hi", got.TranslatedText)
		req.Equal("привет", got.OriginalText)
		req.True(got.IsFinal)
	}
}

func TestFanout_RelaySpeech_FailureFallsBackToOriginal(t *testing.T) {
	req := require.New(t)
	registry, translator, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "ru")
	b := connect(t, registry, "B", "S1", "bob", "en")
	c := connect(t, registry, "C", "S1", "carol", "ru")

	translator.EXPECT().
		Translate(gomock.Any(), "привет", "en", "ru").
		Return(translate.Result{}, context.DeadlineExceeded)

	delivered := fanout.RelaySpeech(context.Background(), "A", "S1", "привет", "", false)
	req.Equal(2, delivered)
	req.Equal("привет", nextEvent[speechTranslatedEvent](t, b, outSpeechTranslated).TranslatedText)
	req.Equal("привет", nextEvent[speechTranslatedEvent](t, c, outSpeechTranslated).TranslatedText)
}

func TestFanout_RelaySpeech_SkipsDepartedRecipient(t *testing.T) {
	req := require.New(t)
	registry, translator, fanout := newTestFanout(t)
	connect(t, registry, "A", "S1", "alice", "ru")
	connect(t, registry, "B", "S1", "bob", "en")

	translator.EXPECT().
		Translate(gomock.Any(), "привет", "en", "ru").
		DoAndReturn(func(context.Context, string, string, string) (translate.Result, error) {
			registry.Disconnect("B")
			return translate.Result{Text: "hi"}, nil
		})

	req.Zero(fanout.RelaySpeech(context.Background(), "A", "S1", "привет", "ru", false))
}
