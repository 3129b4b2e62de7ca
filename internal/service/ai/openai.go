package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures an OpenAI compatible chat completions backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature *float64
	MaxTokens   *int
}

// OpenAIChatModel adapts the openai-go client to the eino chat model interface.
type OpenAIChatModel struct {
	client      openai.Client
	model       string
	temperature *float64
	maxTokens   *int
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel validates cfg and creates the client.
func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIChatModel{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (m *OpenAIChatModel) params(input []*schema.Message, opts ...model.Option) openai.ChatCompletionNewParams {
	defaultModel := m.model
	options := model.GetCommonOptions(&model.Options{Model: &defaultModel}, opts...)

	name := defaultModel
	if options.Model != nil && *options.Model != "" {
		name = *options.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(name),
		Messages: messages,
	}
	if m.temperature != nil {
		params.Temperature = openai.Float(*m.temperature)
	}
	if m.maxTokens != nil && *m.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(*m.maxTokens))
	}
	return params
}

// Generate sends a non-streaming completion request.
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.params(input, opts...))
	if err != nil {
		return nil, err
	}
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream forwards completion deltas as assistant message chunks.
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, m.params(input, opts...))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			msg := &schema.Message{Role: schema.Assistant, Content: choice.Delta.Content}
			if choice.FinishReason != "" {
				msg.ResponseMeta = &schema.ResponseMeta{FinishReason: string(choice.FinishReason)}
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil {
			sw.Send(nil, err)
		}
	}()

	return sr, nil
}
