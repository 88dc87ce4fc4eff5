package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/labreports/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompleteSendsImagePartsAndReadsContent(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"biomarkers\":[]}  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/"}, quietLogger())
	out, err := c.Complete(context.Background(), llm.Request{
		Prompt: "read this",
		Images: []llm.Image{{MIMEType: "image/png", Data: []byte("png")}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"biomarkers":[]}` {
		t.Errorf("content = %q", out)
	}
	if auth != "Bearer k" {
		t.Errorf("auth = %q", auth)
	}
	if got["model"] != "gpt-4o" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(4000) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	if _, ok := got["response_format"]; !ok {
		t.Error("response_format missing for JSON request")
	}

	msgs := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1 (no system)", len(msgs))
	}
	parts := msgs[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %d", len(parts))
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	if !strings.HasPrefix(img["url"].(string), "data:image/png;base64,") {
		t.Errorf("url = %v", img["url"])
	}
	if img["detail"] != "high" {
		t.Errorf("detail = %v", img["detail"])
	}
}

func TestCompleteTextOnlyWithSystem(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o-mini"}, quietLogger())
	if _, err := c.Complete(context.Background(), llm.Request{System: "sys", Prompt: "hi", MaxTokens: 10}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if msgs[1].(map[string]any)["content"] != "hi" {
		t.Errorf("user content = %v", msgs[1])
	}
	if got["max_tokens"] != float64(10) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	if _, ok := got["response_format"]; ok {
		t.Error("response_format set for non-JSON request")
	}
	if c.Name() != "openai/gpt-4o-mini" {
		t.Errorf("Name = %s", c.Name())
	}
}

func TestCompleteErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"http 500", http.StatusInternalServerError, `{"error":"boom"}`},
		{"bad json", http.StatusOK, `not json`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, quietLogger())
			if _, err := c.Complete(context.Background(), llm.Request{Prompt: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCompleteStatusErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, quietLogger())
	_, err := c.Complete(context.Background(), llm.Request{Prompt: "x"})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
}
