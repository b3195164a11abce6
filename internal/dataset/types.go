// Package dataset 定义数据集生成的共享领域类型
// Package dataset defines the shared domain types for dataset generation.
package dataset

import "strings"

// ModelProvider 模型提供方
// ModelProvider identifies where a model is served from.
type ModelProvider string

const (
	ProviderOllama ModelProvider = "ollama"
	ProviderOpenAI ModelProvider = "openai"
)

// Model 一个可用于生成的模型描述
// Model describes a model that can be used for generation.
type Model struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Size         string        `json:"size"`
	Modified     string        `json:"modified"`
	Provider     ModelProvider `json:"provider"`
	Capabilities []string      `json:"capabilities"`
}

// GenerationConfig 一次生成任务的完整配置
// GenerationConfig is the full configuration for one generation run.
type GenerationConfig struct {
	TargetEntries int    `json:"target_entries"`
	BatchSize     int    `json:"batch_size"`
	SelectedModel string `json:"selected_model"`
	Objective     string `json:"fine_tuning_goal"`
	DomainContext string `json:"domain_context"`
	Format        Format `json:"format"`
}

// TotalBatches 按目标条目数和批大小向上取整
// TotalBatches is the ceil-division batch count for this config.
func (c GenerationConfig) TotalBatches() int {
	if c.BatchSize <= 0 || c.TargetEntries <= 0 {
		return 0
	}
	return (c.TargetEntries + c.BatchSize - 1) / c.BatchSize
}

// RunStatus 生成运行的状态
// RunStatus is the lifecycle status of a generation run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal 报告状态是否为终态（completed 或 failed）
// Terminal reports whether the status is terminal (completed or failed).
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress 一次运行的实时进度快照
// Progress is a point-in-time snapshot of a run's progress.
type Progress struct {
	RunID             string    `json:"run_id"`
	CurrentBatch      int       `json:"current_batch"`
	TotalBatches      int       `json:"total_batches"`
	EntriesGenerated  int       `json:"entries_generated"`
	ConcurrentBatches int       `json:"concurrent_batches"`
	EntriesPerSecond  float64   `json:"entries_per_second"`
	PromptTokens      int       `json:"prompt_tokens"`
	ErrorsCount       int       `json:"errors_count"`
	RetriesCount      int       `json:"retries_count"`
	Status            RunStatus `json:"status"`
	Error             string    `json:"error,omitempty"`
}

// Entry 单条训练数据，字段结构由 Format 决定
// Entry is one training example; its field layout depends on the Format.
type Entry map[string]any

// HasFields 报告 entry 是否包含所有给定字段
// HasFields reports whether the entry carries all of the given fields.
func (e Entry) HasFields(fields ...string) bool {
	for _, f := range fields {
		if _, ok := e[f]; !ok {
			return false
		}
	}
	return true
}

// Text 返回字符串字段的值，不存在时为空串
// Text returns the string value of a field, or "" when absent.
func (e Entry) Text(field string) string {
	v, ok := e[field]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
