// Package config 加载应用配置：默认值、JSON 配置文件与环境变量三层叠加
// Package config loads application configuration: defaults, JSON config
// files, and environment variables, layered in that order.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

type OllamaConfig struct {
	BaseURL   string `json:"base_url"`
	TimeoutMS int    `json:"timeout_ms"`
}

type OpenAIConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	TimeoutMS int    `json:"timeout_ms"`
}

type GenerationConfig struct {
	TargetEntries int    `json:"target_entries"`
	BatchSize     int    `json:"batch_size"`
	Format        string `json:"format"`
}

type EngineConfig struct {
	MaxConcurrentBatches int     `json:"max_concurrent_batches"`
	MaxRetries           int     `json:"max_retries"`
	RetryDelayMS         int     `json:"retry_delay_ms"`
	OllamaRPS            float64 `json:"ollama_rps"`
	OpenAIRPS            float64 `json:"openai_rps"`
}

type KnowledgeConfig struct {
	DBPath   string  `json:"db_path"`
	MinScore float64 `json:"min_score"`
}

type ExportConfig struct {
	Dir string `json:"dir"`
}

type Config struct {
	Ollama     OllamaConfig     `json:"ollama"`
	OpenAI     OpenAIConfig     `json:"openai"`
	Generation GenerationConfig `json:"generation"`
	Engine     EngineConfig     `json:"engine"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	Export     ExportConfig     `json:"export"`
}

// fileConfig 文件层用指针字段，未出现的键不覆盖下层值
// fileConfig uses pointer fields so absent keys never clobber lower
// layers.
type fileEngineConfig struct {
	MaxConcurrentBatches *int     `json:"max_concurrent_batches"`
	MaxRetries           *int     `json:"max_retries"`
	RetryDelayMS         *int     `json:"retry_delay_ms"`
	OllamaRPS            *float64 `json:"ollama_rps"`
	OpenAIRPS            *float64 `json:"openai_rps"`
}

type fileKnowledgeConfig struct {
	DBPath   *string  `json:"db_path"`
	MinScore *float64 `json:"min_score"`
}

type fileGenerationConfig struct {
	TargetEntries *int    `json:"target_entries"`
	BatchSize     *int    `json:"batch_size"`
	Format        *string `json:"format"`
}

type fileConfig struct {
	Ollama     *OllamaConfig         `json:"ollama"`
	OpenAI     *OpenAIConfig         `json:"openai"`
	Generation *fileGenerationConfig `json:"generation"`
	Engine     *fileEngineConfig     `json:"engine"`
	Knowledge  *fileKnowledgeConfig  `json:"knowledge"`
	Export     *ExportConfig         `json:"export"`
}

func Default() Config {
	return Config{
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434/v1",
			TimeoutMS: 120000,
		},
		OpenAI: OpenAIConfig{
			BaseURL:   "https://api.openai.com/v1",
			TimeoutMS: 120000,
		},
		Generation: GenerationConfig{
			TargetEntries: 100,
			BatchSize:     25,
			Format:        "alpaca",
		},
		Engine: EngineConfig{
			MaxConcurrentBatches: 6,
			MaxRetries:           3,
			RetryDelayMS:         500,
			OllamaRPS:            15,
			OpenAIRPS:            80,
		},
		Knowledge: KnowledgeConfig{
			DBPath:   "~/.datasmith/knowledge.db",
			MinScore: 0.5,
		},
	}
}

// Load 叠加配置：默认值 → 全局文件 → 项目文件 → .env → 环境变量
// Load layers configuration: defaults, then the global file, the project
// file, .env, and finally environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("DATASMITH_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	// .env 只补充缺失的环境变量，不覆盖已有的
	// .env only fills in missing environment variables.
	_ = godotenv.Load()

	applyEnv(&cfg)
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".datasmith", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"datasmith.config.json",
		".datasmith/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fc fileConfig
	if err := json.Unmarshal(cleaned, &fc); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fc)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Ollama != nil {
		if strings.TrimSpace(fc.Ollama.BaseURL) != "" {
			cfg.Ollama.BaseURL = fc.Ollama.BaseURL
		}
		if fc.Ollama.TimeoutMS > 0 {
			cfg.Ollama.TimeoutMS = fc.Ollama.TimeoutMS
		}
	}
	if fc.OpenAI != nil {
		if strings.TrimSpace(fc.OpenAI.BaseURL) != "" {
			cfg.OpenAI.BaseURL = fc.OpenAI.BaseURL
		}
		if strings.TrimSpace(fc.OpenAI.APIKey) != "" {
			cfg.OpenAI.APIKey = fc.OpenAI.APIKey
		}
		if fc.OpenAI.TimeoutMS > 0 {
			cfg.OpenAI.TimeoutMS = fc.OpenAI.TimeoutMS
		}
	}
	if fc.Generation != nil {
		if fc.Generation.TargetEntries != nil {
			cfg.Generation.TargetEntries = *fc.Generation.TargetEntries
		}
		if fc.Generation.BatchSize != nil {
			cfg.Generation.BatchSize = *fc.Generation.BatchSize
		}
		if fc.Generation.Format != nil {
			cfg.Generation.Format = *fc.Generation.Format
		}
	}
	if fc.Engine != nil {
		if fc.Engine.MaxConcurrentBatches != nil {
			cfg.Engine.MaxConcurrentBatches = *fc.Engine.MaxConcurrentBatches
		}
		if fc.Engine.MaxRetries != nil {
			cfg.Engine.MaxRetries = *fc.Engine.MaxRetries
		}
		if fc.Engine.RetryDelayMS != nil {
			cfg.Engine.RetryDelayMS = *fc.Engine.RetryDelayMS
		}
		if fc.Engine.OllamaRPS != nil {
			cfg.Engine.OllamaRPS = *fc.Engine.OllamaRPS
		}
		if fc.Engine.OpenAIRPS != nil {
			cfg.Engine.OpenAIRPS = *fc.Engine.OpenAIRPS
		}
	}
	if fc.Knowledge != nil {
		if fc.Knowledge.DBPath != nil {
			cfg.Knowledge.DBPath = *fc.Knowledge.DBPath
		}
		if fc.Knowledge.MinScore != nil {
			cfg.Knowledge.MinScore = *fc.Knowledge.MinScore
		}
	}
	if fc.Export != nil {
		if strings.TrimSpace(fc.Export.Dir) != "" {
			cfg.Export.Dir = fc.Export.Dir
		}
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL")); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_DB_PATH")); v != "" {
		cfg.Knowledge.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_EXPORT_DIR")); v != "" {
		cfg.Export.Dir = v
	}
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Ollama.BaseURL) == "" {
		cfg.Ollama.BaseURL = def.Ollama.BaseURL
	}
	if cfg.Ollama.TimeoutMS <= 0 {
		cfg.Ollama.TimeoutMS = def.Ollama.TimeoutMS
	}
	if strings.TrimSpace(cfg.OpenAI.BaseURL) == "" {
		cfg.OpenAI.BaseURL = def.OpenAI.BaseURL
	}
	if cfg.OpenAI.TimeoutMS <= 0 {
		cfg.OpenAI.TimeoutMS = def.OpenAI.TimeoutMS
	}
	if cfg.Generation.TargetEntries <= 0 {
		cfg.Generation.TargetEntries = def.Generation.TargetEntries
	}
	if cfg.Generation.BatchSize <= 0 {
		cfg.Generation.BatchSize = def.Generation.BatchSize
	}
	if strings.TrimSpace(cfg.Generation.Format) == "" {
		cfg.Generation.Format = def.Generation.Format
	}
	if cfg.Engine.MaxConcurrentBatches <= 0 {
		cfg.Engine.MaxConcurrentBatches = def.Engine.MaxConcurrentBatches
	}
	if cfg.Engine.MaxRetries <= 0 {
		cfg.Engine.MaxRetries = def.Engine.MaxRetries
	}
	if cfg.Engine.RetryDelayMS <= 0 {
		cfg.Engine.RetryDelayMS = def.Engine.RetryDelayMS
	}
	if cfg.Engine.OllamaRPS <= 0 {
		cfg.Engine.OllamaRPS = def.Engine.OllamaRPS
	}
	if cfg.Engine.OpenAIRPS <= 0 {
		cfg.Engine.OpenAIRPS = def.Engine.OpenAIRPS
	}
	if cfg.Knowledge.MinScore <= 0 || cfg.Knowledge.MinScore >= 1 {
		cfg.Knowledge.MinScore = def.Knowledge.MinScore
	}

	dbPath, err := expandPath(cfg.Knowledge.DBPath)
	if err != nil {
		return err
	}
	cfg.Knowledge.DBPath = dbPath

	if strings.TrimSpace(cfg.Export.Dir) != "" {
		dir, err := expandPath(cfg.Export.Dir)
		if err != nil {
			return err
		}
		cfg.Export.Dir = dir
	}
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

// stripJSONComments 允许配置文件里写 // 和 /* */ 注释
// stripJSONComments allows // and /* */ comments in config files.
func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
