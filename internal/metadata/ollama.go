package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaConfig は OllamaExtractor の設定です。
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaExtractor はローカルの Ollama サーバーで書誌情報を推定します。
type OllamaExtractor struct {
	baseURL string
	model   string
	timeout time.Duration
	hc      *http.Client
}

// NewOllamaExtractor は OllamaExtractor を作成します。
func NewOllamaExtractor(cfg OllamaConfig) *OllamaExtractor {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInferTimeout
	}
	return &OllamaExtractor{
		baseURL: baseURL,
		model:   cfg.Model,
		timeout: timeout,
		hc:      &http.Client{},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Infer は抽出済みテキストから書誌情報を推定します。
func (e *OllamaExtractor) Infer(ctx context.Context, text string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(generateRequest{
		Model:  e.model,
		Prompt: fmt.Sprintf(extractionPrompt, truncateInput(text)),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.hc.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, wrapTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindBackendUnavailable, Err: fmt.Errorf("ollama: status %d: %s", resp.StatusCode, snippet(string(body)))}
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}
	if parsed.Error != "" {
		return nil, &Error{Kind: KindBackendUnavailable, Err: fmt.Errorf("ollama: %s", parsed.Error)}
	}

	return parseRecord(parsed.Response, text)
}
