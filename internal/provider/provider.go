// Package provider 封装对 OpenAI 兼容推理服务的访问
// Package provider wraps access to OpenAI-compatible inference services,
// both hosted OpenAI and a local Ollama daemon exposing the /v1 surface.
package provider

import (
	"context"

	"datasmith/internal/dataset"
)

// CompletionRequest 一次非流式补全请求
// CompletionRequest is a single non-streaming completion request.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float64
	MaxTokens   int
}

// CompletionResponse 补全结果
// CompletionResponse is the completion result.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage token 用量
// Usage reports token usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider 推理服务端口。实现必须支持并发调用。
// Provider is the inference service port. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Name 返回服务名（"ollama" 或 "openai"）
	// Name returns the service name ("ollama" or "openai").
	Name() string

	// Complete 执行一次补全；上下文取消时立刻返回
	// Complete performs one completion, returning promptly on context
	// cancellation.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ListModels 列出服务上可用的模型
	// ListModels lists the models available on the service.
	ListModels(ctx context.Context) ([]dataset.Model, error)
}
