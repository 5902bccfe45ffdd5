// Package metadata は抽出済みテキストから論文の書誌情報（著者・年・タイトル）を推定します。
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yourusername/paper-rename/internal/config"
)

// Unknown は判定できなかった項目に入る値です。
const Unknown = "unknown"

const (
	fallbackTitle = "Research_Paper"
	maxInputChars = 6000
	maxFieldChars = 50

	promptTemperature = 0.1
	promptMaxTokens   = 150
)

// extractionPrompt は推定バックエンドへ渡す指示文です。
// 応答はJSONオブジェクトのみを想定し、それ以外の形式は解釈エラーとして扱います。
const extractionPrompt = `You are a research paper metadata extractor. From the paper text below, extract:
- "author": the first author's last name only
- "year": the 4-digit publication year
- "title": the paper title shortened to at most 5 words

Respond with ONLY a JSON object, no other text:
{"author": "LastName", "year": "YYYY", "title": "Short_Title_Here"}

If a value cannot be determined, use "unknown". Never guess.

Paper text:
%s`

// Record は推定された書誌情報です。判定できなかった項目には Unknown が入ります。
// ShortTitle だけは本文の先頭からも導出するため、必ず何らかの値が入ります。
type Record struct {
	AuthorLastName string
	Year           string
	ShortTitle     string
}

// ErrorKind は推定失敗の種別です。
type ErrorKind string

const (
	KindBackendUnavailable ErrorKind = "BACKEND_UNAVAILABLE"
	KindTimeout            ErrorKind = "TIMEOUT"
	KindMalformedResponse  ErrorKind = "MALFORMED_RESPONSE"
)

// Error はメタデータ推定の失敗を表します。
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBackendUnavailable:
		return "メタデータ推定サービスに接続できませんでした。"
	case KindTimeout:
		return "メタデータ推定がタイムアウトしました。"
	default:
		return "メタデータ推定の応答を解釈できませんでした。"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor は書誌情報の推定バックエンドです。
// 入力は抽出済みテキストのみで、PDF本体は渡しません。
type Extractor interface {
	Infer(ctx context.Context, text string) (*Record, error)
}

// New は設定に応じた推定バックエンドを作成します。
func New(cfg *config.Config) (Extractor, error) {
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	switch cfg.LLMProvider {
	case "openai":
		return NewOpenAIExtractor(OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}), nil
	case "ollama":
		return NewOllamaExtractor(OllamaConfig{
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %s", cfg.LLMProvider)
	}
}

var (
	jsonPattern  = regexp.MustCompile(`\{[^{}]*\}`)
	yearPattern  = regexp.MustCompile(`(19|20)\d{2}`)
	fieldPattern = regexp.MustCompile(`[^\w\s-]`)
	spacePattern = regexp.MustCompile(`[\s\-]+`)
)

type rawRecord struct {
	Author string `json:"author"`
	Year   string `json:"year"`
	Title  string `json:"title"`
}

// parseRecord はバックエンドの応答テキストから Record を組み立てます。
// 応答に余計な文が混ざっていても、最初のJSONオブジェクトだけを読み取ります。
// タイトルが得られなかった場合は本文の先頭から導出します。
func parseRecord(reply, sourceText string) (*Record, error) {
	match := jsonPattern.FindString(reply)
	if match == "" {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("no JSON object in reply: %s", snippet(reply))}
	}

	var raw rawRecord
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}

	rec := &Record{
		AuthorLastName: normalizeField(raw.Author),
		Year:           sanitizeYear(raw.Year),
		ShortTitle:     normalizeField(raw.Title),
	}
	if rec.ShortTitle == Unknown {
		rec.ShortTitle = titleFromText(sourceText)
	}
	return rec, nil
}

func normalizeField(value string) string {
	cleaned := sanitizeField(value)
	if cleaned == "" || strings.EqualFold(cleaned, Unknown) {
		return Unknown
	}
	return cleaned
}

// sanitizeField は値をファイル名に使える形へ整えます。
func sanitizeField(value string) string {
	cleaned := strings.TrimSpace(value)
	cleaned = fieldPattern.ReplaceAllString(cleaned, "")
	cleaned = spacePattern.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if len(cleaned) > maxFieldChars {
		cleaned = strings.Trim(cleaned[:maxFieldChars], "_")
	}
	return cleaned
}

// sanitizeYear は4桁の西暦だけを受け付けます。
func sanitizeYear(value string) string {
	match := yearPattern.FindString(value)
	if match == "" {
		return Unknown
	}
	return match
}

// titleFromText は本文の先頭5語からタイトルを導出します。
func titleFromText(text string) string {
	fields := strings.Fields(text)
	if len(fields) > 5 {
		fields = fields[:5]
	}
	candidate := sanitizeField(strings.Join(fields, " "))
	if candidate == "" || strings.EqualFold(candidate, Unknown) {
		return fallbackTitle
	}
	return candidate
}

// truncateInput はバックエンドへ渡すテキストを上限まで切り詰めます。
func truncateInput(text string) string {
	if len(text) <= maxInputChars {
		return text
	}
	cut := text[:maxInputChars]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// wrapTransportError はHTTPクライアントのエラーを推定エラーに変換します。
func wrapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindBackendUnavailable, Err: err}
}

func snippet(body string) string {
	const max = 200
	s := strings.TrimSpace(body)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
