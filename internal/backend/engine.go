package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"datasmith/internal/dataset"
	"datasmith/internal/prompt"
	"datasmith/internal/provider"
)

// Options 本地引擎的调优参数
// Options are the local engine's tuning knobs.
type Options struct {
	MaxConcurrentBatches int
	MaxRetries           int
	RetryDelay           time.Duration
	OllamaRPS            float64
	OpenAIRPS            float64
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentBatches <= 0 {
		o.MaxConcurrentBatches = 6
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.OllamaRPS <= 0 {
		o.OllamaRPS = 15
	}
	if o.OpenAIRPS <= 0 {
		o.OpenAIRPS = 80
	}
	return o
}

// Engine 进程内生成引擎：并发批次、限速与重试
// Engine is the in-process generation engine with concurrent batches,
// rate limiting and retries.
type Engine struct {
	providers map[dataset.ModelProvider]provider.Provider
	limiters  map[dataset.ModelProvider]*rateLimiter
	clock     clockwork.Clock
	opts      Options

	mu             sync.Mutex
	runs           map[string]*run
	modelProviders map[string]dataset.ModelProvider
}

type run struct {
	id        string
	cfg       dataset.GenerationConfig
	cancel    context.CancelFunc
	started   time.Time
	tokenizer *prompt.Tokenizer

	mu           sync.Mutex
	status       dataset.RunStatus
	errMsg       string
	batches      int
	inFlight     int
	errors       int
	retries      int
	promptTokens int
	entries      []dataset.Entry
}

// NewEngine 创建引擎；clock 为 nil 时使用真实时钟
// NewEngine builds the engine; a nil clock means wall clock.
func NewEngine(providers map[dataset.ModelProvider]provider.Provider, clock clockwork.Clock, opts Options) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts = opts.withDefaults()
	return &Engine{
		providers: providers,
		limiters: map[dataset.ModelProvider]*rateLimiter{
			dataset.ProviderOllama: newRateLimiter(clock, opts.OllamaRPS),
			dataset.ProviderOpenAI: newRateLimiter(clock, opts.OpenAIRPS),
		},
		clock:          clock,
		opts:           opts,
		runs:           map[string]*run{},
		modelProviders: map[string]dataset.ModelProvider{},
	}
}

// DiscoverModels 合并本地 Ollama 模型与托管目录。
// Ollama 不可达时仍返回托管目录。
// DiscoverModels merges local Ollama models with the hosted catalog. An
// unreachable Ollama daemon still leaves the hosted catalog available.
func (e *Engine) DiscoverModels(ctx context.Context) ([]dataset.Model, error) {
	var models []dataset.Model

	if p, ok := e.providers[dataset.ProviderOllama]; ok {
		local, err := p.ListModels(ctx)
		if err == nil {
			models = append(models, local...)
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	models = append(models, provider.OpenAICatalog()...)

	e.mu.Lock()
	for _, m := range models {
		e.modelProviders[m.ID] = m.Provider
	}
	e.mu.Unlock()

	return models, nil
}

// StartGeneration 校验配置并启动后台运行
// StartGeneration validates the config and launches the background run.
func (e *Engine) StartGeneration(ctx context.Context, cfg dataset.GenerationConfig) (string, error) {
	if cfg.TargetEntries <= 0 {
		return "", fmt.Errorf("target entries must be positive, got %d", cfg.TargetEntries)
	}
	if cfg.BatchSize <= 0 {
		return "", fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if strings.TrimSpace(cfg.SelectedModel) == "" {
		return "", fmt.Errorf("no model selected")
	}
	if _, _, err := e.providerFor(cfg.SelectedModel); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        uuid.NewString(),
		cfg:       cfg,
		cancel:    cancel,
		started:   e.clock.Now(),
		tokenizer: prompt.NewTokenizerForModel(cfg.SelectedModel),
		status:    dataset.StatusRunning,
	}

	e.mu.Lock()
	e.runs[r.id] = r
	e.mu.Unlock()

	go e.execute(runCtx, r)
	return r.id, nil
}

// execute 用信号量限制并发批次数，跑完全部批次
// execute drives every batch through a semaphore-bounded worker pool.
func (e *Engine) execute(ctx context.Context, r *run) {
	total := r.cfg.TotalBatches()
	sem := make(chan struct{}, e.opts.MaxConcurrentBatches)
	var wg sync.WaitGroup

	for b := 0; b < total; b++ {
		if ctx.Err() != nil {
			break
		}
		size := r.cfg.BatchSize
		if remaining := r.cfg.TargetEntries - b*r.cfg.BatchSize; remaining < size {
			size = remaining
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(batchID, size int) {
			defer wg.Done()
			defer func() { <-sem }()
			e.runBatch(ctx, r, batchID, size)
		}(b, size)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		r.status = dataset.StatusFailed
		if r.errMsg == "" {
			r.errMsg = "generation cancelled"
		}
		return
	}
	r.status = dataset.StatusCompleted
}

// runBatch 生成一个批次：限速、重试、兜底
// runBatch produces one batch with rate limiting, retries and fallback.
func (e *Engine) runBatch(ctx context.Context, r *run, batchID, size int) {
	r.mu.Lock()
	r.inFlight++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.batches++
		r.mu.Unlock()
	}()

	p, limiter, err := e.providerFor(r.cfg.SelectedModel)
	if err != nil {
		e.recordFailure(r, size)
		return
	}

	user := prompt.Batch(r.cfg.Objective, r.cfg.Format, size,
		prompt.BatchContext(batchID, r.cfg.BatchSize, r.cfg.TargetEntries))
	req := provider.CompletionRequest{
		Model:  r.cfg.SelectedModel,
		System: prompt.BatchSystem,
		User:   user,
	}

	// 估算本批次的提示词开销，计入进度
	// Estimate this batch's prompt cost and count it toward progress.
	tokens := r.tokenizer.CountRequest(prompt.BatchSystem, user)
	r.mu.Lock()
	r.promptTokens += tokens
	r.mu.Unlock()

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			r.mu.Lock()
			r.retries++
			r.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-e.clock.After(e.opts.RetryDelay):
			}
		}

		if err := limiter.wait(ctx); err != nil {
			return
		}
		resp, err := p.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		entries := dataset.ExtractEntries(resp.Content, r.cfg.Format, size)
		r.mu.Lock()
		r.entries = append(r.entries, entries...)
		r.mu.Unlock()
		return
	}

	// 重试耗尽，记错误并填充占位样例保持数据集规模
	// Retries exhausted: count the error and pad with placeholder entries
	// so the dataset keeps its size.
	e.recordFailure(r, size)
}

func (e *Engine) recordFailure(r *run, size int) {
	fallback := dataset.FallbackEntries(r.cfg.Format, size)
	r.mu.Lock()
	r.errors++
	r.entries = append(r.entries, fallback...)
	r.mu.Unlock()
}

// Progress 返回进度快照
// Progress returns the run's progress snapshot.
func (e *Engine) Progress(ctx context.Context, runID string) (dataset.Progress, error) {
	r, err := e.run(runID)
	if err != nil {
		return dataset.Progress{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := e.clock.Since(r.started).Seconds()
	perSecond := 0.0
	if elapsed > 0 {
		perSecond = float64(len(r.entries)) / elapsed
	}
	return dataset.Progress{
		RunID:             r.id,
		CurrentBatch:      r.batches,
		TotalBatches:      r.cfg.TotalBatches(),
		EntriesGenerated:  len(r.entries),
		ConcurrentBatches: r.inFlight,
		EntriesPerSecond:  perSecond,
		PromptTokens:      r.promptTokens,
		ErrorsCount:       r.errors,
		RetriesCount:      r.retries,
		Status:            r.status,
		Error:             r.errMsg,
	}, nil
}

// CancelGeneration 取消运行；已终止的运行取消是幂等的
// CancelGeneration cancels a run. Cancelling a terminal run is idempotent.
func (e *Engine) CancelGeneration(ctx context.Context, runID string) error {
	r, err := e.run(runID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if !r.status.Terminal() {
		r.status = dataset.StatusFailed
		r.errMsg = "generation cancelled"
	}
	r.mu.Unlock()

	r.cancel()
	return nil
}

// ExportDataset 返回去重后的全部条目
// ExportDataset returns the run's entries after deduplication.
func (e *Engine) ExportDataset(ctx context.Context, runID string) ([]dataset.Entry, error) {
	r, err := e.run(runID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	entries := make([]dataset.Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil, fmt.Errorf("run %s produced no entries", runID)
	}
	return dataset.Dedup(entries), nil
}

// ImprovePrompt 让模型改写目标并清理输出
// ImprovePrompt asks the model to rewrite the objective and cleans the
// reply.
func (e *Engine) ImprovePrompt(ctx context.Context, model, objective string) (string, error) {
	if strings.TrimSpace(objective) == "" {
		return "", fmt.Errorf("objective is empty")
	}
	p, limiter, err := e.providerFor(model)
	if err != nil {
		return "", err
	}
	if err := limiter.wait(ctx); err != nil {
		return "", err
	}

	resp, err := p.Complete(ctx, provider.CompletionRequest{
		Model:  model,
		System: prompt.ImproveSystem,
		User:   prompt.Improve(objective),
	})
	if err != nil {
		return "", fmt.Errorf("improve prompt: %w", err)
	}

	cleaned := prompt.CleanImproved(resp.Content)
	if strings.TrimSpace(cleaned) == "" {
		return "", fmt.Errorf("model returned an empty improvement")
	}
	return cleaned, nil
}

// UseCaseSuggestions 生成建议；模型失败或输出不可解析时用固定建议
// UseCaseSuggestions generates suggestions, falling back to the canned
// list when the model fails or its output cannot be parsed.
func (e *Engine) UseCaseSuggestions(ctx context.Context, model string, format dataset.Format, domainContext string) ([]string, error) {
	p, limiter, err := e.providerFor(model)
	if err != nil {
		return prompt.FallbackSuggestions(format, domainContext), nil
	}
	if err := limiter.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.Complete(ctx, provider.CompletionRequest{
		Model: model,
		User:  prompt.Suggestions(format, domainContext),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return prompt.FallbackSuggestions(format, domainContext), nil
	}

	suggestions := prompt.ParseSuggestions(resp.Content)
	if len(suggestions) == 0 {
		suggestions = prompt.FallbackSuggestions(format, domainContext)
	}
	return suggestions, nil
}

func (e *Engine) run(runID string) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

// providerFor 按发现记录或名字前缀为模型挑选服务
// providerFor picks the service for a model, by discovery record first
// and name prefix otherwise.
func (e *Engine) providerFor(model string) (provider.Provider, *rateLimiter, error) {
	e.mu.Lock()
	kind, ok := e.modelProviders[model]
	e.mu.Unlock()
	if !ok {
		name := strings.ToLower(model)
		if strings.HasPrefix(name, "gpt-") || strings.HasPrefix(name, "o1") || strings.HasPrefix(name, "o3") {
			kind = dataset.ProviderOpenAI
		} else {
			kind = dataset.ProviderOllama
		}
	}
	p, ok := e.providers[kind]
	if !ok {
		return nil, nil, fmt.Errorf("no provider configured for %s", kind)
	}
	return p, e.limiters[kind], nil
}
