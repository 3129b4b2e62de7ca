package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Provider 标识上游大模型的接入方式。
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderArk    Provider = "ark"
	ProviderOpenAI Provider = "openai"
)

// DefaultSessionKey 是浏览器端历史记录使用的固定键。
const DefaultSessionKey = "chatMessages"

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Retrieval RetrievalConfig
	Model     ModelConfig
	History   HistoryConfig
	Log       LogConfig
	Typing    TypingConfig
	TopicGate TopicGateConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	cfg.Server = server

	if err := cfg.Model.loadOptional(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查组合后的配置是否可用。
func (c *Config) Validate() error {
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be >= 1, got %d", c.Retrieval.TopK)
	}
	switch c.Model.Provider {
	case ProviderOllama, ProviderArk, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported MODEL_PROVIDER %q", c.Model.Provider)
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("MODEL_NAME is required")
	}
	if strings.TrimSpace(c.History.SessionKey) == "" {
		c.History.SessionKey = DefaultSessionKey
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RetrievalConfig 描述文献检索服务。
type RetrievalConfig struct {
	URL     string        `env:"RETRIEVAL_URL" envDefault:"http://localhost:8000"`
	TopK    int           `env:"RETRIEVAL_TOP_K" envDefault:"3"`
	Timeout time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"10s"`
	Enabled bool          `env:"RETRIEVAL_ENABLED" envDefault:"true"`
}

// ModelConfig 描述大模型相关配置。
type ModelConfig struct {
	Provider  Provider      `env:"MODEL_PROVIDER" envDefault:"ollama"`
	URL       string        `env:"MODEL_URL" envDefault:"http://localhost:11434"`
	Name      string        `env:"MODEL_NAME" envDefault:"llama3.2"`
	APIKey    string        `env:"MODEL_API_KEY"`
	AccessKey string        `env:"ARK_ACCESS_KEY"`
	SecretKey string        `env:"ARK_SECRET_KEY"`
	Region    string        `env:"ARK_REGION" envDefault:"cn-beijing"`
	Timeout   time.Duration `env:"MODEL_TIMEOUT" envDefault:"5m"`

	// 历史消息的 token 预算，0 表示不裁剪。
	HistoryTokenBudget int `env:"MODEL_HISTORY_TOKEN_BUDGET" envDefault:"0"`

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示当前 provider 是否具备必需的凭证。
func (c ModelConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Name != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderOpenAI:
		return c.Name != "" && c.APIKey != ""
	default:
		return c.Name != "" && c.URL != ""
	}
}

func (c *ModelConfig) loadOptional() error {
	temperature, err := parseOptionalFloatEnv("MODEL_TEMPERATURE")
	if err != nil {
		return err
	}
	topP, err := parseOptionalFloatEnv("MODEL_TOP_P")
	if err != nil {
		return err
	}
	maxTokens, err := parseOptionalIntEnv("MODEL_MAX_TOKENS")
	if err != nil {
		return err
	}
	c.Temperature = temperature
	c.TopP = topP
	c.MaxTokens = maxTokens
	return nil
}

// HistoryConfig 描述本地会话快照的存放位置。
type HistoryConfig struct {
	Dir        string `env:"HISTORY_DIR" envDefault:"./data/history"`
	SessionKey string `env:"HISTORY_SESSION_KEY" envDefault:"chatMessages"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	File   string `env:"LOG_FILE"`
}

// TypingConfig 控制打字机效果的节奏。
type TypingConfig struct {
	Interval time.Duration `env:"TYPING_INTERVAL" envDefault:"10ms"`
}

// TopicGateConfig 控制医学话题过滤。
type TopicGateConfig struct {
	Enabled bool `env:"TOPIC_GATE_ENABLED" envDefault:"false"`
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return &val, nil
}
