// Package backend 定义生成服务端口及其本地实现
// Package backend defines the generation service port and its local
// implementation.
package backend

import (
	"context"
	"errors"

	"datasmith/internal/dataset"
)

// ErrRunNotFound 运行 ID 未知
// ErrRunNotFound means the run ID is unknown.
var ErrRunNotFound = errors.New("generation run not found")

// Backend 生成服务端口。所有方法可并发调用。
// Backend is the generation service port. All methods are safe for
// concurrent use.
type Backend interface {
	// DiscoverModels 发现全部可用模型
	// DiscoverModels discovers every available model.
	DiscoverModels(ctx context.Context) ([]dataset.Model, error)

	// StartGeneration 启动一次生成，返回运行 ID
	// StartGeneration starts a generation run and returns its ID.
	StartGeneration(ctx context.Context, cfg dataset.GenerationConfig) (string, error)

	// Progress 返回运行的当前进度快照
	// Progress returns the run's current progress snapshot.
	Progress(ctx context.Context, runID string) (dataset.Progress, error)

	// CancelGeneration 取消进行中的运行
	// CancelGeneration cancels an in-flight run.
	CancelGeneration(ctx context.Context, runID string) error

	// ExportDataset 返回运行产出的全部条目
	// ExportDataset returns every entry the run produced.
	ExportDataset(ctx context.Context, runID string) ([]dataset.Entry, error)

	// ImprovePrompt 让模型改写微调目标
	// ImprovePrompt asks a model to rewrite the fine-tuning objective.
	ImprovePrompt(ctx context.Context, model, objective string) (string, error)

	// UseCaseSuggestions 生成 5 条用例建议
	// UseCaseSuggestions generates five use-case suggestions.
	UseCaseSuggestions(ctx context.Context, model string, format dataset.Format, domainContext string) ([]string, error)
}
