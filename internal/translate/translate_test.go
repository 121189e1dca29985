package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPTranslator_Translate(t *testing.T) {
	req := require.New(t)
	var got translateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/translate", r.URL.Path)
		req.NoError(json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(translateResponse{Translation: " hello ", DetectedLanguage: "ru"})
	}))
	defer server.Close()

	translator := NewHTTPTranslator(server.URL+"/", time.Second)
	result, err := translator.Translate(context.Background(), "привет", "en", "ru")
	req.NoError(err)
	req.Equal("hello", result.Text)
	req.Equal("ru", result.DetectedLanguage)
	req.Equal(translateRequest{Text: "привет", SourceLang: "ru", TargetLang: "en"}, got)
}

func TestHTTPTranslator_ServiceError(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	translator := NewHTTPTranslator(server.URL, time.Second)
	_, err := translator.Translate(context.Background(), "hello", "ru", "en")
	req.Error(err)
	req.Contains(err.Error(), "503")
}

func TestHTTPTranslator_EmptyText(t *testing.T) {
	translator := NewHTTPTranslator("http://127.0.0.1:0", time.Second)
	_, err := translator.Translate(context.Background(), "   ", "ru", "en")
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestHTTPTranslator_AutoSourceWhenUndetected(t *testing.T) {
	req := require.New(t)
	var got translateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.NoError(json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(translateResponse{Translation: "ok", DetectedLanguage: "en"})
	}))
	defer server.Close()

	translator := NewHTTPTranslator(server.URL, time.Second)
	result, err := translator.Translate(context.Background(), "ok", "ru", "")
	req.NoError(err)
	req.Equal("auto", got.SourceLang)
	req.Equal("en", result.DetectedLanguage)
}

type countingTranslator struct {
	calls atomic.Int32
}

func (c *countingTranslator) Translate(_ context.Context, text, targetLang, sourceLang string) (Result, error) {
	c.calls.Add(1)
	return Result{Text: targetLang + ":" + text, DetectedLanguage: sourceLang}, nil
}

func TestCached_ReusesResults(t *testing.T) {
	req := require.New(t)
	next := &countingTranslator{}
	cached, err := NewCached(next, time.Minute)
	req.NoError(err)
	defer cached.Close()

	first, err := cached.Translate(context.Background(), "hello", "ru", "en")
	req.NoError(err)
	cached.cache.Wait()

	second, err := cached.Translate(context.Background(), "hello", "ru", "en")
	req.NoError(err)
	req.Equal(first, second)
	req.EqualValues(1, next.calls.Load())

	_, err = cached.Translate(context.Background(), "hello", "de", "en")
	req.NoError(err)
	req.EqualValues(2, next.calls.Load())
}

func TestCached_SkipsUnknownSource(t *testing.T) {
	req := require.New(t)
	next := &countingTranslator{}
	cached, err := NewCached(next, time.Minute)
	req.NoError(err)
	defer cached.Close()

	for i := 0; i < 2; i++ {
		_, err = cached.Translate(context.Background(), "hello", "ru", "")
		req.NoError(err)
		cached.cache.Wait()
	}
	req.EqualValues(2, next.calls.Load())
}

func TestDetect(t *testing.T) {
	req := require.New(t)
	req.Equal("en", Detect("The consultation will start tomorrow morning, please make sure your camera works."))
	req.Equal("ru", Detect("Консультация начнется завтра утром, пожалуйста, проверьте, что ваша камера работает."))
}

func TestStub(t *testing.T) {
	req := require.New(t)
	result, err := Stub{}.Translate(context.Background(), "hello", "ru", "en")
	req.NoError(err)
	req.Equal("[ru] hello", result.Text)
	req.Equal("en", result.DetectedLanguage)
}
