package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
)

// Service streams replies from the configured chat model.
type Service struct {
	chatModel model.BaseChatModel
	logger    *slog.Logger
}

// NewService wraps chatModel.
func NewService(chatModel model.BaseChatModel, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{chatModel: chatModel, logger: logger}
}

// ChatModel returns the underlying model.
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

// StreamReply opens a streaming completion for payload. Closing the returned
// stream cancels the upstream request.
func (s *Service) StreamReply(ctx context.Context, payload Payload) (FragmentStream, error) {
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("payload has no messages")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	var opts []model.Option
	if payload.Model != "" {
		opts = append(opts, model.WithModel(payload.Model))
	}

	reader, err := s.chatModel.Stream(streamCtx, payload.Messages, opts...)
	if err != nil {
		cancel()
		return nil, err
	}

	s.logger.Debug("streaming reply", slog.String("model", payload.Model), slog.Int("messages", len(payload.Messages)))
	return &cancelStream{FragmentStream: newMessageStream(reader), cancel: cancel}, nil
}

type cancelStream struct {
	FragmentStream
	cancel context.CancelFunc
}

func (s *cancelStream) Close() error {
	err := s.FragmentStream.Close()
	s.cancel()
	return err
}
