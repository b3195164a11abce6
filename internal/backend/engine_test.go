package backend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"datasmith/internal/dataset"
	"datasmith/internal/provider"
)

// fakeProvider 可编程的 Provider 替身
// fakeProvider is a programmable Provider stand-in.
type fakeProvider struct {
	name     string
	calls    int32
	complete func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error)
	models   []dataset.Model
	listErr  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return provider.CompletionResponse{}, err
	}
	call := atomic.AddInt32(&f.calls, 1)
	if f.complete == nil {
		return provider.CompletionResponse{Content: "[]"}, nil
	}
	return f.complete(req, call)
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]dataset.Model, error) {
	return f.models, f.listErr
}

func alpacaJSON(n int) string {
	out := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"instruction":"task %d","input":"","output":"result %d"}`, i, i)
	}
	return out + "]"
}

func newTestEngine(t *testing.T, ollama *fakeProvider) *Engine {
	t.Helper()
	return NewEngine(map[dataset.ModelProvider]provider.Provider{
		dataset.ProviderOllama: ollama,
	}, nil, Options{
		MaxConcurrentBatches: 2,
		MaxRetries:           2,
		RetryDelay:           time.Millisecond,
		OllamaRPS:            10000,
		OpenAIRPS:            10000,
	})
}

func waitTerminal(t *testing.T, e *Engine, runID string) dataset.Progress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := e.Progress(context.Background(), runID)
		if err != nil {
			t.Fatalf("Progress: %v", err)
		}
		if p.Status.Terminal() {
			return p
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("run never reached a terminal status")
	return dataset.Progress{}
}

func testConfig() dataset.GenerationConfig {
	return dataset.GenerationConfig{
		TargetEntries: 10,
		BatchSize:     5,
		SelectedModel: "llama3.2",
		Objective:     "teach SQL basics",
		Format:        dataset.FormatAlpaca,
	}
}

func TestEngine_StartGeneration_Validation(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{name: "ollama"})

	cfg := testConfig()
	cfg.TargetEntries = 0
	if _, err := e.StartGeneration(context.Background(), cfg); err == nil {
		t.Fatal("expected error for zero target entries")
	}

	cfg = testConfig()
	cfg.BatchSize = 0
	if _, err := e.StartGeneration(context.Background(), cfg); err == nil {
		t.Fatal("expected error for zero batch size")
	}

	cfg = testConfig()
	cfg.SelectedModel = " "
	if _, err := e.StartGeneration(context.Background(), cfg); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestEngine_ProgressTracksPromptTokens(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: alpacaJSON(5)}, nil
		},
	}
	e := newTestEngine(t, ollama)

	runID, err := e.StartGeneration(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	p := waitTerminal(t, e, runID)
	if p.PromptTokens <= 0 {
		t.Fatalf("prompt tokens should be counted, got %d", p.PromptTokens)
	}
	// 两个批次都发出 system+user 提示，计数应明显高于单批
	// Both batches send a system+user prompt, so the count clearly exceeds
	// one batch's worth.
	if p.PromptTokens < 2*50 {
		t.Fatalf("prompt tokens implausibly low for two batches: %d", p.PromptTokens)
	}
}

func TestEngine_RunToCompletion(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: alpacaJSON(5)}, nil
		},
	}
	e := newTestEngine(t, ollama)

	runID, err := e.StartGeneration(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	p := waitTerminal(t, e, runID)
	if p.Status != dataset.StatusCompleted {
		t.Fatalf("Status=%s Error=%q, want completed", p.Status, p.Error)
	}
	if p.CurrentBatch != 2 || p.TotalBatches != 2 {
		t.Fatalf("batches %d/%d, want 2/2", p.CurrentBatch, p.TotalBatches)
	}
	if p.EntriesGenerated != 10 {
		t.Fatalf("EntriesGenerated=%d, want 10", p.EntriesGenerated)
	}
	if p.ErrorsCount != 0 || p.RetriesCount != 0 {
		t.Fatalf("errors=%d retries=%d, want 0/0", p.ErrorsCount, p.RetriesCount)
	}
}

func TestEngine_RetriesThenFallback(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, errors.New("model overloaded")
		},
	}
	e := newTestEngine(t, ollama)

	cfg := testConfig()
	cfg.TargetEntries = 5
	cfg.BatchSize = 5
	runID, err := e.StartGeneration(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	p := waitTerminal(t, e, runID)
	if p.Status != dataset.StatusCompleted {
		t.Fatalf("Status=%s, want completed (failed batches fall back)", p.Status)
	}
	if p.ErrorsCount != 1 {
		t.Fatalf("ErrorsCount=%d, want 1", p.ErrorsCount)
	}
	if p.RetriesCount != 2 {
		t.Fatalf("RetriesCount=%d, want 2", p.RetriesCount)
	}
	// 兜底样例保住数据集规模 / Fallback entries keep the dataset size.
	if p.EntriesGenerated != 5 {
		t.Fatalf("EntriesGenerated=%d, want 5", p.EntriesGenerated)
	}
}

func TestEngine_Cancel(t *testing.T) {
	release := make(chan struct{})
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			<-release
			return provider.CompletionResponse{Content: alpacaJSON(5)}, nil
		},
	}
	e := newTestEngine(t, ollama)

	runID, err := e.StartGeneration(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if err := e.CancelGeneration(context.Background(), runID); err != nil {
		t.Fatalf("CancelGeneration: %v", err)
	}
	close(release)

	p := waitTerminal(t, e, runID)
	if p.Status != dataset.StatusFailed {
		t.Fatalf("Status=%s, want failed after cancel", p.Status)
	}
	if p.Error == "" {
		t.Fatal("cancelled run should carry an error message")
	}

	// 取消是幂等的 / Cancel is idempotent.
	if err := e.CancelGeneration(context.Background(), runID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestEngine_Progress_UnknownRun(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{name: "ollama"})
	if _, err := e.Progress(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err=%v, want ErrRunNotFound", err)
	}
}

func TestEngine_ExportDataset(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			// 每批返回相同内容，导出时应去重
			// Every batch returns identical content; export must dedup.
			return provider.CompletionResponse{Content: alpacaJSON(5)}, nil
		},
	}
	e := newTestEngine(t, ollama)

	runID, err := e.StartGeneration(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	waitTerminal(t, e, runID)

	entries, err := e.ExportDataset(context.Background(), runID)
	if err != nil {
		t.Fatalf("ExportDataset: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len=%d, want 5 after dedup", len(entries))
	}

	if _, err := e.ExportDataset(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err=%v, want ErrRunNotFound", err)
	}
}

func TestEngine_DiscoverModels(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		models: []dataset.Model{
			{ID: "llama3.2", Name: "llama3.2", Provider: dataset.ProviderOllama},
		},
	}
	e := newTestEngine(t, ollama)

	models, err := e.DiscoverModels(context.Background())
	if err != nil {
		t.Fatalf("DiscoverModels: %v", err)
	}
	if len(models) != 1+len(provider.OpenAICatalog()) {
		t.Fatalf("len=%d, want local + catalog", len(models))
	}

	// Ollama 挂了仍给出托管目录 / A down Ollama still yields the catalog.
	ollama.listErr = errors.New("connection refused")
	models, err = e.DiscoverModels(context.Background())
	if err != nil {
		t.Fatalf("DiscoverModels with down ollama: %v", err)
	}
	if len(models) != len(provider.OpenAICatalog()) {
		t.Fatalf("len=%d, want catalog only", len(models))
	}
}

func TestEngine_ImprovePrompt(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{
				Content: "Here is the improved goal: Train the model to answer SQL questions with worked examples.",
			}, nil
		},
	}
	e := newTestEngine(t, ollama)

	got, err := e.ImprovePrompt(context.Background(), "llama3.2", "teach SQL")
	if err != nil {
		t.Fatalf("ImprovePrompt: %v", err)
	}
	if got != "Train the model to answer SQL questions with worked examples." {
		t.Fatalf("got %q", got)
	}

	if _, err := e.ImprovePrompt(context.Background(), "llama3.2", "  "); err == nil {
		t.Fatal("expected error for empty objective")
	}
}

func TestEngine_UseCaseSuggestions(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: `1. Train the model for invoice data extraction
2. Improve contract clause classification accuracy
3. Teach structured summarization of filings
4. Generate compliance checklist answers reliably
5. Answer tax questions with cited regulations`}, nil
		},
	}
	e := newTestEngine(t, ollama)

	got, err := e.UseCaseSuggestions(context.Background(), "llama3.2", dataset.FormatAlpaca, "finance")
	if err != nil {
		t.Fatalf("UseCaseSuggestions: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len=%d, want 5", len(got))
	}
}

func TestEngine_UseCaseSuggestions_FallbackOnError(t *testing.T) {
	ollama := &fakeProvider{
		name: "ollama",
		complete: func(req provider.CompletionRequest, call int32) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, errors.New("down")
		},
	}
	e := newTestEngine(t, ollama)

	got, err := e.UseCaseSuggestions(context.Background(), "llama3.2", dataset.FormatAlpaca, "finance")
	if err != nil {
		t.Fatalf("UseCaseSuggestions: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("fallback len=%d, want 5", len(got))
	}
}
