//go:generate go run go.uber.org/mock/mockgen -source=translate.go -destination=../mocks/mock_translator.go -package=mocks
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyText = errors.New("text is empty")

// Result is what a provider returns for one call.
type Result struct {
	Text             string
	DetectedLanguage string
}

// Translator is the external text-translation provider.
// An empty sourceLang asks the provider to detect it.
type Translator interface {
	Translate(ctx context.Context, text, targetLang, sourceLang string) (Result, error)
}

// Stub echoes the text tagged with the target language. Used when no
// translation service is configured.
type Stub struct{}

func (s Stub) Translate(_ context.Context, text, targetLang, sourceLang string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}
	if sourceLang == "" {
		sourceLang = Detect(text)
	}
	return Result{Text: "[" + targetLang + "] " + text, DetectedLanguage: sourceLang}, nil
}

// HTTPTranslator calls a translation service over HTTP
type HTTPTranslator struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPTranslator creates a translator for the service at baseURL
func NewHTTPTranslator(baseURL string, timeout time.Duration) *HTTPTranslator {
	return &HTTPTranslator{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	Translation      string `json:"translation"`
	DetectedLanguage string `json:"detected_language"`
}

func (h *HTTPTranslator) Translate(ctx context.Context, text, targetLang, sourceLang string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}

	// Local detection first; the service still gets "auto" when unsure.
	if sourceLang == "" {
		sourceLang = Detect(text)
	}
	requestedSource := sourceLang
	if requestedSource == "" {
		requestedSource = "auto"
	}

	body, err := json.Marshal(translateRequest{
		Text:       text,
		SourceLang: requestedSource,
		TargetLang: targetLang,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("translation service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	detected := result.DetectedLanguage
	if detected == "" {
		detected = sourceLang
	}
	return Result{Text: strings.TrimSpace(result.Translation), DetectedLanguage: detected}, nil
}
