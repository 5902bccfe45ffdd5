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

func TestOllamaExtractorInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream to be disabled")
		}
		if req.Format != "json" {
			t.Errorf("unexpected format: %q", req.Format)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"{\"author\":\"Tanaka\",\"year\":\"2019\",\"title\":\"Neural Networks\"}"}`)
	}))
	defer srv.Close()

	ex := NewOllamaExtractor(OllamaConfig{BaseURL: srv.URL, Model: "llama3", Timeout: 5 * time.Second})

	rec, err := ex.Infer(context.Background(), "paper text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.AuthorLastName != "Tanaka" || rec.Year != "2019" || rec.ShortTitle != "Neural_Networks" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestOllamaExtractorInferBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	ex := NewOllamaExtractor(OllamaConfig{BaseURL: srv.URL, Model: "missing", Timeout: 5 * time.Second})

	_, err := ex.Infer(context.Background(), "paper text")
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != KindBackendUnavailable {
		t.Fatalf("expected KindBackendUnavailable, got %v", err)
	}
}
