package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAIExtractorInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if req.MaxTokens != promptMaxTokens {
			t.Errorf("unexpected max_tokens: %d", req.MaxTokens)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"author\":\"Smith\",\"year\":\"2020\",\"title\":\"Machine Learning\"}"}}]}`)
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor(OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})

	rec, err := ex.Infer(context.Background(), "paper text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.AuthorLastName != "Smith" || rec.Year != "2020" || rec.ShortTitle != "Machine_Learning" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestOpenAIExtractorInferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor(OpenAIConfig{BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})

	_, err := ex.Infer(context.Background(), "paper text")
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindBackendUnavailable {
		t.Fatalf("expected KindBackendUnavailable, got %v", err)
	}
}

func TestOpenAIExtractorInferMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not json")
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor(OpenAIConfig{BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})

	_, err := ex.Infer(context.Background(), "paper text")
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindMalformedResponse {
		t.Fatalf("expected KindMalformedResponse, got %v", err)
	}
}

func TestOpenAIExtractorInferTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor(OpenAIConfig{BaseURL: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})

	_, err := ex.Infer(context.Background(), "paper text")
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
}

func TestOpenAIExtractorInferConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ex := NewOpenAIExtractor(OpenAIConfig{BaseURL: url, Model: "m", Timeout: time.Second})

	_, err := ex.Infer(context.Background(), "paper text")
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindBackendUnavailable {
		t.Fatalf("expected KindBackendUnavailable, got %v", err)
	}
}
