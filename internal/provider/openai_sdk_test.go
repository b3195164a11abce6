package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"datasmith/internal/dataset"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		Name:       "ollama",
		BaseURL:    srv.URL + "/v1",
		MaxRetries: 2,
	})
	return c, srv
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "llama3.2",
		"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestClient_Complete(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "llama3.2" {
			t.Errorf("model = %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody(`[{"instruction":"x","input":"","output":"y"}]`))
	}))

	resp, err := c.Complete(context.Background(), CompletionRequest{
		Model:  "llama3.2",
		System: "system",
		User:   "user",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content == "" || resp.FinishReason != "stop" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestClient_Complete_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody("ok response"))
	}))

	resp, err := c.Complete(context.Background(), CompletionRequest{Model: "llama3.2", User: "u"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok response" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestClient_Complete_ExhaustsRetries(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	if _, err := c.Complete(context.Background(), CompletionRequest{Model: "m", User: "u"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// MaxRetries=2 means one initial attempt plus two retries.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestClient_Complete_CanceledContextNotRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "slow", http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Complete(ctx, CompletionRequest{Model: "m", User: "u"}); err == nil {
		t.Fatal("expected error on canceled context")
	}
	if got := atomic.LoadInt32(&calls); got > 1 {
		t.Fatalf("calls = %d, want at most 1", got)
	}
}

func TestClient_Complete_EmptyModel(t *testing.T) {
	c := NewClient(Config{Name: "ollama", BaseURL: "http://127.0.0.1:1/v1"})
	if _, err := c.Complete(context.Background(), CompletionRequest{User: "u"}); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestClient_ListModels(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "llama3.2", "object": "model", "created": 1700000000},
				{"id": "qwen2.5-coder", "object": "model", "created": 1700000001},
			},
		})
	}))

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("len = %d, want 2", len(models))
	}
	if models[0].Provider != dataset.ProviderOllama {
		t.Fatalf("Provider = %q", models[0].Provider)
	}
	if models[0].Modified == "" {
		t.Fatal("Modified should be set from created timestamp")
	}
}

func TestInferCapabilities(t *testing.T) {
	caps := InferCapabilities("qwen2.5-coder")
	found := false
	for _, c := range caps {
		if c == "code" {
			found = true
		}
	}
	if !found {
		t.Fatalf("coder model should carry code capability, got %v", caps)
	}
}

func TestOpenAICatalog(t *testing.T) {
	models := OpenAICatalog()
	if len(models) == 0 {
		t.Fatal("catalog is empty")
	}
	for _, m := range models {
		if m.Provider != dataset.ProviderOpenAI {
			t.Fatalf("%s: Provider = %q", m.ID, m.Provider)
		}
		if m.Name == "" || m.ID == "" {
			t.Fatalf("catalog entry incomplete: %+v", m)
		}
	}
}
