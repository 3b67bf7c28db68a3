package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rites-dev/perplexity-tele-bot/llm"
)

func TestChatExtractsFirstChoice(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotAuth string
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Hi there  "}}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	res, err := c.Chat(context.Background(), llm.Request{
		Model: "sonar",
		Messages: []llm.Message{
			{Role: "system", Content: "You are a helpful Telegram assistant."},
			{Role: "user", Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "Hi there" {
		t.Fatalf("text mismatch: got %q want %q", res.Text, "Hi there")
	}
	if res.Usage.TotalTokens != 13 {
		t.Fatalf("total tokens mismatch: got %d want 13", res.Usage.TotalTokens)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path mismatch: got %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header mismatch: got %q", gotAuth)
	}
	if gotBody.Model != "sonar" {
		t.Fatalf("model mismatch: got %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("messages mismatch: got %+v", gotBody.Messages)
	}
}

func TestChatNonOKStatusReturnsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	_, err := c.Chat(context.Background(), llm.Request{Model: "sonar"})
	if err == nil {
		t.Fatalf("Chat() expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error type mismatch: got %T", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Fatalf("status mismatch: got %d want %d", se.Code, http.StatusServiceUnavailable)
	}
	if se.Body != "overloaded" {
		t.Fatalf("body mismatch: got %q", se.Body)
	}
}

func TestChatEmptyChoicesYieldsEmptyText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	res, err := c.Chat(context.Background(), llm.Request{Model: "sonar"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "" {
		t.Fatalf("text mismatch: got %q want empty", res.Text)
	}
}
