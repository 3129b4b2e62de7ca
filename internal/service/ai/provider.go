package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/medintell/oncochat/backend/internal/config"
)

// NewChatModel 根据配置的 provider 创建模型实例。
func NewChatModel(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("model provider %q is missing credentials or model name", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderArk:
		return newArkChatModel(ctx, cfg)
	case config.ProviderOpenAI:
		return NewOpenAIChatModel(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     hostedBaseURL(cfg.URL),
			Model:       cfg.Name,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case config.ProviderOllama:
		return NewOllamaChatModel(OllamaConfig{
			BaseURL:     cfg.URL,
			Model:       cfg.Name,
			Timeout:     cfg.Timeout,
			Temperature: toFloat32(cfg.Temperature),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

func newArkChatModel(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	arkCfg := &ark.ChatModelConfig{
		Region:      cfg.Region,
		APIKey:      cfg.APIKey,
		AccessKey:   cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		Model:       cfg.Name,
		MaxTokens:   cfg.MaxTokens,
		Temperature: toFloat32(cfg.Temperature),
		TopP:        toFloat32(cfg.TopP),
		BaseURL:     hostedBaseURL(cfg.URL),
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return chatModel, nil
}

const defaultOllamaURL = "http://localhost:11434"

// hostedBaseURL 在 MODEL_URL 仍是本地 Ollama 默认值时返回空串，交给 SDK 使用官方地址。
func hostedBaseURL(url string) string {
	if url == defaultOllamaURL {
		return ""
	}
	return url
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
