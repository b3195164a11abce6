package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"datasmith/internal/dataset"
)

// Client 使用 go-openai SDK 的 Provider 实现
// Client implements Provider using the go-openai SDK. It talks to any
// OpenAI-compatible endpoint, including Ollama's /v1 surface.
type Client struct {
	client *openai.Client
	cfg    Config
}

// Config SDK provider 配置
// Config is the SDK provider configuration.
type Config struct {
	// Name 服务名，写入发现到的模型 / Name is the service name stamped on
	// discovered models.
	Name       string
	BaseURL    string
	APIKey     string
	TimeoutMS  int
	MaxRetries int
}

// NewClient 创建基于 SDK 的 provider
// NewClient creates an SDK-based provider.
func NewClient(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	config.HTTPClient = httpClient

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
	}
}

func (c *Client) Name() string {
	return c.cfg.Name
}

// Complete 带指数退避重试的一次补全；上下文取消不重试
// Complete performs one completion with exponential backoff retries.
// Context cancellation is never retried.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return CompletionResponse{}, fmt.Errorf("model is empty")
	}

	sdkReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.Temperature != nil {
		sdkReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return CompletionResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, sdkReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return CompletionResponse{}, fmt.Errorf("completion returned no choices")
			}
			choice := resp.Choices[0]
			return CompletionResponse{
				Content:      choice.Message.Content,
				FinishReason: string(choice.FinishReason),
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}, nil
		}
		lastErr = err

		// 不可重试的错误 / Non-retryable errors
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return CompletionResponse{}, err
		}
	}
	return CompletionResponse{}, fmt.Errorf("completion failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// ListModels 列出服务上的模型并推断能力标签
// ListModels lists the service's models and infers capability tags.
func (c *Client) ListModels(ctx context.Context) ([]dataset.Model, error) {
	resp, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	provider := dataset.ProviderOllama
	if c.cfg.Name == "openai" {
		provider = dataset.ProviderOpenAI
	}

	models := make([]dataset.Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		modified := ""
		if m.CreatedAt > 0 {
			modified = time.Unix(m.CreatedAt, 0).UTC().Format(time.RFC3339)
		}
		models = append(models, dataset.Model{
			ID:           m.ID,
			Name:         m.ID,
			Modified:     modified,
			Provider:     provider,
			Capabilities: InferCapabilities(m.ID),
		})
	}
	return models, nil
}

// InferCapabilities 根据模型名推断能力标签
// InferCapabilities derives capability tags from the model name.
func InferCapabilities(id string) []string {
	name := strings.ToLower(id)
	caps := []string{"chat", "completion"}
	if strings.Contains(name, "code") || strings.Contains(name, "coder") {
		caps = append(caps, "code")
	}
	if strings.Contains(name, "vision") || strings.Contains(name, "llava") || strings.Contains(name, "4o") {
		caps = append(caps, "vision")
	}
	if strings.Contains(name, "embed") {
		caps = append(caps, "embedding")
	}
	if strings.HasPrefix(name, "o1") || strings.HasPrefix(name, "o3") || strings.Contains(name, "r1") {
		caps = append(caps, "reasoning")
	}
	return caps
}
