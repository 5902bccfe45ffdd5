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

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultInferTimeout  = 30 * time.Second
	maxResponseBytes     = 1 << 20
)

// OpenAIConfig は OpenAIExtractor の設定です。
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIExtractor は OpenAI互換の chat/completions API で書誌情報を推定します。
type OpenAIExtractor struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	hc      *http.Client
}

// NewOpenAIExtractor は OpenAIExtractor を作成します。
func NewOpenAIExtractor(cfg OpenAIConfig) *OpenAIExtractor {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInferTimeout
	}
	return &OpenAIExtractor{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
		hc:      &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Infer は抽出済みテキストから書誌情報を推定します。
func (e *OpenAIExtractor) Infer(ctx context.Context, text string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(extractionPrompt, truncateInput(text))},
		},
		Temperature: promptTemperature,
		MaxTokens:   promptMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

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
		return nil, &Error{Kind: KindBackendUnavailable, Err: fmt.Errorf("openai: status %d: %s", resp.StatusCode, snippet(string(body)))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}
	if parsed.Error != nil {
		return nil, &Error{Kind: KindBackendUnavailable, Err: fmt.Errorf("openai: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("openai: no choices in response")}
	}

	return parseRecord(parsed.Choices[0].Message.Content, text)
}
