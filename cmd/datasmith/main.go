package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"datasmith/internal/backend"
	"datasmith/internal/config"
	"datasmith/internal/dataset"
	"datasmith/internal/knowledge"
	"datasmith/internal/notify"
	"datasmith/internal/orchestrator"
	"datasmith/internal/provider"
	"datasmith/internal/tui"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	providers := buildProviders(cfg)
	engine := backend.NewEngine(providers, nil, backend.Options{
		MaxConcurrentBatches: cfg.Engine.MaxConcurrentBatches,
		MaxRetries:           cfg.Engine.MaxRetries,
		RetryDelay:           time.Duration(cfg.Engine.RetryDelayMS) * time.Millisecond,
		OllamaRPS:            cfg.Engine.OllamaRPS,
		OpenAIRPS:            cfg.Engine.OpenAIRPS,
	})

	// 知识库不可用时降级运行，不阻止生成
	// The knowledge base degrades gracefully; generation works without it.
	var store *knowledge.Store
	if cfg.Knowledge.DBPath != "" {
		store, err = knowledge.NewStore(cfg.Knowledge.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "knowledge base unavailable: %v\n", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	center := notify.NewCenter(nil, notify.DefaultTTL)
	orch := orchestrator.New(engine, center, nil, orchestrator.Options{
		InitialConfig: dataset.GenerationConfig{
			TargetEntries: cfg.Generation.TargetEntries,
			BatchSize:     cfg.Generation.BatchSize,
			Format:        dataset.ParseFormat(cfg.Generation.Format),
		},
		Knowledge:       store,
		MinQualityScore: cfg.Knowledge.MinScore,
	})
	defer orch.Close()

	if err := tui.Run(orch, cfg.Export.Dir); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}

// buildProviders 按配置组装模型提供方；无 API key 时不启用 OpenAI
// buildProviders assembles model providers from config; OpenAI stays off
// without an API key.
func buildProviders(cfg config.Config) map[dataset.ModelProvider]provider.Provider {
	providers := map[dataset.ModelProvider]provider.Provider{
		dataset.ProviderOllama: provider.NewClient(provider.Config{
			Name:      "ollama",
			BaseURL:   cfg.Ollama.BaseURL,
			APIKey:    "ollama",
			TimeoutMS: cfg.Ollama.TimeoutMS,
		}),
	}
	if cfg.OpenAI.APIKey != "" {
		providers[dataset.ProviderOpenAI] = provider.NewClient(provider.Config{
			Name:      "openai",
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKey:    cfg.OpenAI.APIKey,
			TimeoutMS: cfg.OpenAI.TimeoutMS,
		})
	}
	return providers
}
