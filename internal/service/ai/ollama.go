package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/medintell/oncochat/backend/internal/domain"
)

// OllamaConfig configures the NDJSON chat model.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature *float32
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OllamaChatModel streams chat completions from an Ollama compatible
// /api/chat endpoint.
type OllamaChatModel struct {
	baseURL     string
	model       string
	temperature *float32
	client      *http.Client
	logger      *slog.Logger
}

var _ model.BaseChatModel = (*OllamaChatModel)(nil)

// NewOllamaChatModel creates the model client.
func NewOllamaChatModel(cfg OllamaConfig) *OllamaChatModel {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaChatModel{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      client,
		logger:      logger,
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

// Open issues the streaming request and returns a reader over its body.
func (m *OllamaChatModel) Open(ctx context.Context, input []*schema.Message, opts ...model.Option) (*FragmentReader, error) {
	defaultModel := m.model
	options := model.GetCommonOptions(&model.Options{Model: &defaultModel, Temperature: m.temperature}, opts...)

	payload := ollamaRequest{
		Model:    defaultModel,
		Messages: make([]ollamaMessage, 0, len(input)),
		Stream:   true,
	}
	if options.Model != nil && *options.Model != "" {
		payload.Model = *options.Model
	}
	if options.Temperature != nil {
		payload.Options = map[string]any{"temperature": *options.Temperature}
	}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		payload.Messages = append(payload.Messages, ollamaMessage{Role: string(msg.Role), Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &domain.StreamTransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &domain.StreamTransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("model server responded %s: %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}

	m.logger.Debug("model stream opened", slog.String("model", payload.Model), slog.Int("messages", len(payload.Messages)))
	return NewFragmentReader(resp.Body, m.logger), nil
}

// Generate drains the stream and returns the complete assistant message.
func (m *OllamaChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	reader, err := m.Open(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	text, err := Collect(reader)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream forwards fragments as assistant message chunks. Closing the returned
// reader stops the forwarding goroutine and releases the response body.
func (m *OllamaChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reader, err := m.Open(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		defer reader.Close()

		for {
			fragment, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, err)
				return
			}

			chunk := &schema.Message{Role: schema.Assistant, Content: fragment.MessageDelta}
			if fragment.Done {
				chunk.ResponseMeta = &schema.ResponseMeta{FinishReason: "stop"}
			}
			if closed := sw.Send(chunk, nil); closed {
				return
			}
		}
	}()

	return sr, nil
}
