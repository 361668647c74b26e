package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello back"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1/", "test-key")
	text, usage, err := c.Chat(context.Background(), ChatParams{
		Model:  "gpt-4o-mini",
		System: "be brief",
		User:   "hello",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != "hello back" {
		t.Errorf("text = %q", text)
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 3 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestChatNoSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}}], "usage": {}}`)
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL, "k").Chat(context.Background(), ChatParams{User: "hi"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, "k").Chat(context.Background(), ChatParams{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [], "usage": {}}`)
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL, "k").Chat(context.Background(), ChatParams{User: "hi"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Input != "some text" || req.Dimensions != 4 {
			t.Errorf("request = %+v", req)
		}
		fmt.Fprint(w, `{
			"data": [{"embedding": [0.1, 0.2, 0.3, 0.4]}],
			"usage": {"prompt_tokens": 7, "total_tokens": 7}
		}`)
	}))
	defer srv.Close()

	vec, tokens, err := New(srv.URL, "k").Embed(context.Background(), "text-embedding-3-small", "some text", 4)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 4 || vec[0] != 0.1 {
		t.Errorf("vec = %v", vec)
	}
	if tokens != 7 {
		t.Errorf("tokens = %d", tokens)
	}
}

func TestEmbedEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [], "usage": {}}`)
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL, "k").Embed(context.Background(), "m", "t", 4); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}}], "usage": {}}`)
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL, "").Chat(context.Background(), ChatParams{User: "hi"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}
