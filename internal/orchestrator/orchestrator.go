// Package orchestrator 驱动数据集生成向导：会话状态机、进度轮询与通知
// Package orchestrator drives the dataset generation wizard: the session
// state machine, progress polling, and notifications.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"datasmith/internal/backend"
	"datasmith/internal/dataset"
	"datasmith/internal/export"
	"datasmith/internal/knowledge"
	"datasmith/internal/notify"
	"datasmith/internal/quality"
)

// Step 向导步骤
// Step is the wizard step.
type Step int

const (
	StepSelectingModel Step = iota
	StepConfiguring
	StepGenerating
	StepExporting
)

func (s Step) String() string {
	switch s {
	case StepSelectingModel:
		return "selecting_model"
	case StepConfiguring:
		return "configuring"
	case StepGenerating:
		return "generating"
	case StepExporting:
		return "exporting"
	default:
		return "unknown"
	}
}

// DefaultPollInterval 进度轮询周期
// DefaultPollInterval is the progress polling period.
const DefaultPollInterval = time.Second

var (
	// ErrUnknownModel 选择了不存在的模型
	// ErrUnknownModel means the selected model is not in the list.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNoModelSelected 未选择模型
	// ErrNoModelSelected means no model has been selected yet.
	ErrNoModelSelected = errors.New("no model selected")
	// ErrNoObjective 微调目标为空
	// ErrNoObjective means the fine-tuning objective is empty.
	ErrNoObjective = errors.New("fine-tuning objective is empty")
	// ErrRunActive 已有生成在进行
	// ErrRunActive means a generation run is already active.
	ErrRunActive = errors.New("a generation run is already active")
	// ErrRunNotCompleted 运行尚未完成，不能导出
	// ErrRunNotCompleted means the run has not completed, so export is
	// unavailable.
	ErrRunNotCompleted = errors.New("generation run has not completed")
	// ErrNoKnowledgeBase 未配置知识库
	// ErrNoKnowledgeBase means no knowledge base is configured.
	ErrNoKnowledgeBase = errors.New("knowledge base not configured")
)

// ConfigPatch 配置的部分更新，nil 字段保持原值
// ConfigPatch is a partial config update; nil fields keep their value.
type ConfigPatch struct {
	TargetEntries *int
	BatchSize     *int
	Objective     *string
	DomainContext *string
	Format        *dataset.Format
}

// Snapshot 会话状态的只读快照，供 UI 渲染
// Snapshot is a read-only view of the session for rendering.
type Snapshot struct {
	Step            Step
	Models          []dataset.Model
	SelectedModelID string
	Config          dataset.GenerationConfig
	ActiveRun       *dataset.Progress
	Generating      bool
	Busy            bool
	Notifications   notify.Notifications
}

// Options 编排器可调项
// Options are the orchestrator's tunables.
type Options struct {
	PollInterval  time.Duration
	InitialConfig dataset.GenerationConfig
	// Knowledge 可选：导出成功后把条目评分入库
	// Knowledge is optional: entries are scored and stored after a
	// successful export.
	Knowledge *knowledge.Store
	// MinQualityScore 入库门槛，零值用知识库默认
	// MinQualityScore is the storage threshold; zero means the
	// knowledge base default.
	MinQualityScore float64
}

// Orchestrator 单会话编排器。所有状态变更经 mu 串行化；
// RPC 调用一律在锁外进行。
// Orchestrator is the single-session orchestrator. Every state mutation
// is serialized through mu; RPC calls always run outside the lock.
type Orchestrator struct {
	backend backend.Backend
	center  *notify.Center
	clock   clockwork.Clock
	opts    Options

	mu              sync.Mutex
	step            Step
	models          []dataset.Model
	selectedModelID string
	config          dataset.GenerationConfig
	activeRunID     string
	activeRun       *dataset.Progress
	generating      bool
	busy            bool

	// epoch 在 reset 或终态时递增；迟到的轮询结果按 epoch 丢弃
	// epoch increments on reset and terminal states; late poll results
	// carrying an old epoch are discarded.
	epoch    uint64
	pollStop chan struct{}
}

// New 创建编排器；clock 为 nil 时使用真实时钟
// New creates the orchestrator; a nil clock means wall clock.
func New(b backend.Backend, center *notify.Center, clock clockwork.Clock, opts Options) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	cfg := opts.InitialConfig
	if cfg.TargetEntries <= 0 {
		cfg.TargetEntries = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Format == "" {
		cfg.Format = dataset.FormatAlpaca
	}
	return &Orchestrator{
		backend: b,
		center:  center,
		clock:   clock,
		opts:    opts,
		step:    StepSelectingModel,
		config:  cfg,
	}
}

// Snapshot 返回当前会话快照
// Snapshot returns the current session view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	models := make([]dataset.Model, len(o.models))
	copy(models, o.models)
	var run *dataset.Progress
	if o.activeRun != nil {
		cp := *o.activeRun
		run = &cp
	}
	return Snapshot{
		Step:            o.step,
		Models:          models,
		SelectedModelID: o.selectedModelID,
		Config:          o.config,
		ActiveRun:       run,
		Generating:      o.generating,
		Busy:            o.busy,
		Notifications:   o.center.Current(),
	}
}

// DiscoverModels 替换模型列表。失败时保留旧列表并报错误通知。
// DiscoverModels replaces the model list wholesale. On failure the old
// list survives and an error notification is raised.
func (o *Orchestrator) DiscoverModels(ctx context.Context) error {
	o.mu.Lock()
	o.busy = true
	o.mu.Unlock()

	models, err := o.backend.DiscoverModels(ctx)

	o.mu.Lock()
	o.busy = false
	if err != nil {
		o.mu.Unlock()
		o.center.Raise(notify.KindError, "model discovery failed: "+err.Error())
		return fmt.Errorf("discover models: %w", err)
	}
	o.models = models
	if o.selectedModelID != "" && !o.hasModelLocked(o.selectedModelID) {
		o.selectedModelID = ""
	}
	if o.selectedModelID == "" && len(models) > 0 {
		o.selectedModelID = models[0].ID
	}
	o.mu.Unlock()
	return nil
}

// SelectModel 选择模型；id 不在列表中时拒绝
// SelectModel picks a model, rejecting ids absent from the list.
func (o *Orchestrator) SelectModel(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.hasModelLocked(id) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	o.selectedModelID = id
	return nil
}

func (o *Orchestrator) hasModelLocked(id string) bool {
	for _, m := range o.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Advance 直接设置步骤
// Advance assigns the step directly.
func (o *Orchestrator) Advance(step Step) {
	o.mu.Lock()
	o.step = step
	o.mu.Unlock()
}

// Back 回退一步，不低于模型选择
// Back steps backwards, bottoming out at model selection.
func (o *Orchestrator) Back() {
	o.mu.Lock()
	if o.step > StepSelectingModel {
		o.step--
	}
	o.mu.Unlock()
}

// UpdateConfig 浅合并配置更新
// UpdateConfig shallow-merges the patch into the config.
func (o *Orchestrator) UpdateConfig(patch ConfigPatch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if patch.TargetEntries != nil {
		o.config.TargetEntries = *patch.TargetEntries
	}
	if patch.BatchSize != nil {
		o.config.BatchSize = *patch.BatchSize
	}
	if patch.Objective != nil {
		o.config.Objective = *patch.Objective
	}
	if patch.DomainContext != nil {
		o.config.DomainContext = *patch.DomainContext
	}
	if patch.Format != nil {
		o.config.Format = *patch.Format
	}
}

// Config 返回当前配置
// Config returns the current configuration.
func (o *Orchestrator) Config() dataset.GenerationConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.config
}

// StartGeneration 校验前置条件并启动生成。守卫失败只发通知，
// 不触碰后端；启动 RPC 失败回退到配置步骤。
// StartGeneration validates its guards and launches the run. Guard
// violations raise a notification without touching the backend; a failed
// start RPC rolls back to the configuring step.
func (o *Orchestrator) StartGeneration(ctx context.Context) error {
	o.mu.Lock()
	if o.generating {
		o.mu.Unlock()
		o.center.Raise(notify.KindError, "a generation run is already in progress")
		return ErrRunActive
	}
	if o.selectedModelID == "" {
		o.mu.Unlock()
		o.center.Raise(notify.KindError, "select a model before starting generation")
		return ErrNoModelSelected
	}
	if strings.TrimSpace(o.config.Objective) == "" {
		o.mu.Unlock()
		o.center.Raise(notify.KindError, "enter a fine-tuning objective before starting generation")
		return ErrNoObjective
	}

	cfg := o.config
	cfg.SelectedModel = o.selectedModelID
	o.step = StepGenerating
	o.generating = true
	o.activeRun = &dataset.Progress{
		Status:       dataset.StatusPending,
		TotalBatches: cfg.TotalBatches(),
	}
	epoch := o.epoch
	o.mu.Unlock()

	runID, err := o.backend.StartGeneration(ctx, cfg)

	o.mu.Lock()
	if o.epoch != epoch {
		// reset 已经发生，丢弃这次启动的结果
		// A reset happened meanwhile; drop this start's outcome.
		o.mu.Unlock()
		return nil
	}
	if err != nil {
		o.activeRun = nil
		o.generating = false
		o.step = StepConfiguring
		o.mu.Unlock()
		o.center.Raise(notify.KindError, "failed to start generation: "+err.Error())
		return fmt.Errorf("start generation: %w", err)
	}
	o.activeRunID = runID
	o.activeRun.RunID = runID
	o.startPollingLocked(epoch, runID)
	o.mu.Unlock()

	o.center.Raise(notify.KindSuccess, "generation started")
	return nil
}

// startPollingLocked 创建轮询 ticker 并启动轮询协程。
// ticker 在锁内同步创建，保证返回后时钟推进必然触发轮询。
// startPollingLocked creates the poll ticker and spawns the poll
// goroutine. The ticker is created synchronously under the lock so that
// clock advances after return always produce ticks.
func (o *Orchestrator) startPollingLocked(epoch uint64, runID string) {
	stop := make(chan struct{})
	o.pollStop = stop
	ticker := o.clock.NewTicker(o.opts.PollInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				// 取数在本协程同步进行：取数慢时下一个 tick 被
				// ticker 丢弃而不是排队，保证同一时刻只有一个取数。
				// The fetch runs synchronously here: during a slow
				// fetch the ticker drops the next tick instead of
				// queueing it, so fetches never overlap.
				progress, err := o.backend.Progress(context.Background(), runID)
				if !o.applyPoll(epoch, progress, err) {
					return
				}
			}
		}
	}()
}

// applyPoll 合并一次轮询结果，返回是否继续轮询。
// epoch 不匹配说明 reset 抢先，结果直接丢弃。
// applyPoll merges one poll result and reports whether polling should
// continue. A mismatched epoch means a reset won the race and the result
// is discarded.
func (o *Orchestrator) applyPoll(epoch uint64, p dataset.Progress, err error) bool {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return false
	}

	if err != nil {
		o.stopPollingLocked()
		o.generating = false
		o.mu.Unlock()
		o.center.Raise(notify.KindError, "progress check failed: "+err.Error())
		return false
	}

	cp := p
	o.activeRun = &cp

	switch p.Status {
	case dataset.StatusCompleted:
		o.stopPollingLocked()
		o.generating = false
		o.step = StepExporting
		o.mu.Unlock()
		o.center.Raise(notify.KindSuccess,
			fmt.Sprintf("generation completed: %d entries in %d batches", p.EntriesGenerated, p.CurrentBatch))
		return false
	case dataset.StatusFailed:
		o.stopPollingLocked()
		o.generating = false
		o.mu.Unlock()
		msg := p.Error
		if msg == "" {
			msg = "generation failed"
		}
		o.center.Raise(notify.KindError, msg)
		return false
	}

	o.mu.Unlock()
	return true
}

// stopPollingLocked 停止轮询并递增 epoch，迟到结果作废
// stopPollingLocked stops polling and bumps the epoch, voiding any late
// results.
func (o *Orchestrator) stopPollingLocked() {
	if o.pollStop != nil {
		close(o.pollStop)
		o.pollStop = nil
	}
	o.epoch++
}

// CancelGeneration 取消当前运行；轮询会观察到 failed 终态
// CancelGeneration cancels the active run; polling then observes the
// failed terminal status.
func (o *Orchestrator) CancelGeneration(ctx context.Context) error {
	o.mu.Lock()
	runID := o.activeRunID
	o.mu.Unlock()
	if runID == "" {
		return nil
	}
	if err := o.backend.CancelGeneration(ctx, runID); err != nil {
		o.center.Raise(notify.KindError, "cancel failed: "+err.Error())
		return fmt.Errorf("cancel generation: %w", err)
	}
	return nil
}

// ExportDataset 导出完成的运行。用户取消保存是静默空操作。
// ExportDataset exports a completed run. A user-cancelled save is a
// silent no-op.
func (o *Orchestrator) ExportDataset(ctx context.Context, resolver export.PathResolver) (export.Result, error) {
	o.mu.Lock()
	runID := o.activeRunID
	run := o.activeRun
	cfg := o.config
	o.mu.Unlock()

	if runID == "" || run == nil || run.Status != dataset.StatusCompleted {
		o.center.Raise(notify.KindError, "nothing to export: generation has not completed")
		return export.Result{}, ErrRunNotCompleted
	}

	entries, err := o.backend.ExportDataset(ctx, runID)
	if err != nil {
		o.center.Raise(notify.KindError, "export failed: "+err.Error())
		return export.Result{}, fmt.Errorf("export dataset: %w", err)
	}
	if len(entries) == 0 {
		o.center.Raise(notify.KindError, "export failed: the run produced no entries")
		return export.Result{}, export.ErrNoEntries
	}

	path, err := resolver.Resolve(cfg.Format)
	if err != nil {
		if errors.Is(err, export.ErrCancelled) {
			return export.Result{}, nil
		}
		o.center.Raise(notify.KindError, "export failed: "+err.Error())
		return export.Result{}, err
	}

	res, err := export.Dataset(path, entries, cfg.Format)
	if err != nil {
		o.center.Raise(notify.KindError, "export failed: "+err.Error())
		return export.Result{}, err
	}

	o.storeKnowledge(cfg, entries)

	o.center.Raise(notify.KindSuccess,
		fmt.Sprintf("exported %d entries to %s", res.Written, res.Path))
	return res, nil
}

// storeKnowledge 把导出的条目评分入库；失败只记日志不打断导出
// storeKnowledge scores and stores exported entries. Failures are logged
// without interrupting the export.
func (o *Orchestrator) storeKnowledge(cfg dataset.GenerationConfig, entries []dataset.Entry) {
	if o.opts.Knowledge == nil {
		return
	}
	stats, err := o.opts.Knowledge.ProcessEntries(cfg.Objective, cfg.Format, cfg.Objective, entries, o.opts.MinQualityScore)
	if err != nil {
		log.Printf("knowledge store: %v", err)
		return
	}
	log.Printf("knowledge store: %d/%d entries kept (avg score %.2f)",
		stats.Stored, stats.TotalProcessed, stats.AverageScore)
}

// KnowledgeInsights 知识库对当前用例的洞察
// KnowledgeInsights is what the knowledge base knows about the current
// use case.
type KnowledgeInsights struct {
	Stats       knowledge.UsageStats
	Suggestions []string
	TopEntries  []knowledge.StoredEntry
}

// KnowledgeInsights 汇总知识库统计、改进建议和当前用例的最佳条目
// KnowledgeInsights aggregates knowledge base statistics, improvement
// advice and the current use case's best stored entries.
func (o *Orchestrator) KnowledgeInsights() (KnowledgeInsights, error) {
	if o.opts.Knowledge == nil {
		return KnowledgeInsights{}, ErrNoKnowledgeBase
	}

	o.mu.Lock()
	useCase := o.config.Objective
	format := o.config.Format
	o.mu.Unlock()

	var out KnowledgeInsights
	stats, err := o.opts.Knowledge.Stats()
	if err != nil {
		return out, fmt.Errorf("knowledge stats: %w", err)
	}
	out.Stats = stats

	suggestions, err := o.opts.Knowledge.ImprovementSuggestions(useCase)
	if err != nil {
		return out, fmt.Errorf("improvement suggestions: %w", err)
	}
	out.Suggestions = suggestions

	top, err := o.opts.Knowledge.Search(knowledge.SearchFilter{
		UseCase: useCase,
		Format:  format,
		Limit:   3,
	})
	if err != nil {
		return out, fmt.Errorf("knowledge search: %w", err)
	}
	out.TopEntries = top
	return out, nil
}

// RequestPromptImprovement 请求目标改写，不修改配置
// RequestPromptImprovement asks for an objective rewrite without
// mutating the config; applying it is the caller's decision.
func (o *Orchestrator) RequestPromptImprovement(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		o.center.Raise(notify.KindError, "enter an objective to improve first")
		return "", ErrNoObjective
	}

	o.mu.Lock()
	model := o.selectedModelID
	o.mu.Unlock()
	if model == "" {
		o.center.Raise(notify.KindError, "select a model before improving the objective")
		return "", ErrNoModelSelected
	}

	improved, err := o.backend.ImprovePrompt(ctx, model, text)
	if err != nil {
		o.center.Raise(notify.KindError, "objective improvement failed: "+err.Error())
		return "", fmt.Errorf("improve prompt: %w", err)
	}
	o.center.Raise(notify.KindSuccess, "objective improved")
	return improved, nil
}

// RequestUseCaseSuggestions 请求用例建议
// RequestUseCaseSuggestions asks for use-case suggestions.
func (o *Orchestrator) RequestUseCaseSuggestions(ctx context.Context) ([]string, error) {
	o.mu.Lock()
	model := o.selectedModelID
	format := o.config.Format
	domain := o.config.DomainContext
	o.mu.Unlock()
	if model == "" {
		o.center.Raise(notify.KindError, "select a model before requesting suggestions")
		return nil, ErrNoModelSelected
	}

	suggestions, err := o.backend.UseCaseSuggestions(ctx, model, format, domain)
	if err != nil {
		o.center.Raise(notify.KindError, "suggestion request failed: "+err.Error())
		return nil, fmt.Errorf("use case suggestions: %w", err)
	}
	return suggestions, nil
}

// AnalyzeBatchSizes 基于当前配置跑批大小投影
// AnalyzeBatchSizes runs the batch size projection for the current
// config.
func (o *Orchestrator) AnalyzeBatchSizes(candidates []int) ([]quality.BatchSizeAnalysis, quality.Recommendation, bool) {
	o.mu.Lock()
	total := o.config.TargetEntries
	current := 0
	if o.activeRun != nil {
		current = o.activeRun.CurrentBatch
	}
	o.mu.Unlock()

	analyses := quality.AnalyzeBatchSizes(total, current, candidates)
	rec, ok := quality.Recommend(analyses, quality.DefaultTargetQuality)
	return analyses, rec, ok
}

// Reset 停止轮询、清空运行与通知，回到模型选择。
// 模型列表和配置保留。
// Reset stops polling, clears the run and notifications, and returns to
// model selection. Models and config survive.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.stopPollingLocked()
	o.activeRun = nil
	o.activeRunID = ""
	o.generating = false
	o.step = StepSelectingModel
	o.mu.Unlock()

	o.center.Clear()
}

// Close 停止轮询，进程退出前调用
// Close stops polling; call before process exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.stopPollingLocked()
	o.mu.Unlock()
}
