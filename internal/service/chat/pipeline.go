package chat

//go:generate mockgen -source=pipeline.go -destination=mock_pipeline_test.go -package=chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
	"github.com/medintell/oncochat/backend/internal/service/ai"
)

// Retriever supplies background context for a query.
type Retriever interface {
	FetchContext(ctx context.Context, query string, topK int) (string, error)
}

// Streamer opens a streaming model reply for a composed payload.
type Streamer interface {
	StreamReply(ctx context.Context, payload ai.Payload) (ai.FragmentStream, error)
}

// Request describes one relay run.
type Request struct {
	History  []chat.Message
	UserTurn string
	Model    string
	Persona  *persona.Persona
}

// Hooks observe the progress of a run. Nil hooks are skipped.
type Hooks struct {
	// OnContext fires once retrieval has finished, successfully or not.
	OnContext func(contextText string)
	// OnFragment fires for every fragment with the text accumulated so far.
	OnFragment func(fragment ai.Fragment, content string)
}

// Pipeline runs retrieval, composition and model streaming for one turn.
type Pipeline struct {
	retriever Retriever
	streamer  Streamer
	composer  *ai.Composer
	topK      int
	logger    *slog.Logger
}

// NewPipeline wires the relay. retriever may be nil to skip retrieval.
func NewPipeline(retriever Retriever, streamer Streamer, composer *ai.Composer, topK int, logger *slog.Logger) *Pipeline {
	if topK < 1 {
		topK = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retriever: retriever,
		streamer:  streamer,
		composer:  composer,
		topK:      topK,
		logger:    logger,
	}
}

// Composer exposes the prompt composer.
func (p *Pipeline) Composer() *ai.Composer {
	return p.composer
}

// Run executes the relay and returns the full assistant text. A stream failure
// is returned as *domain.StreamTransportError carrying the partial text.
func (p *Pipeline) Run(ctx context.Context, req Request, hooks Hooks) (string, error) {
	if strings.TrimSpace(req.UserTurn) == "" {
		return "", domain.Invalid("message", domain.ErrEmptyMessage)
	}

	contextText := p.fetchContext(ctx, req.UserTurn)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if hooks.OnContext != nil {
		hooks.OnContext(contextText)
	}

	composer := p.composer
	if req.Persona != nil {
		composer = composer.WithPersona(*req.Persona)
	}
	payload, err := composer.ComposePayload(contextText, req.History, req.UserTurn, req.Model)
	if err != nil {
		return "", err
	}

	stream, err := p.streamer.StreamReply(ctx, payload)
	if err != nil {
		var transportErr *domain.StreamTransportError
		if errors.As(err, &transportErr) {
			return "", err
		}
		return "", &domain.StreamTransportError{Err: err}
	}
	defer stream.Close()

	var content strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var transportErr *domain.StreamTransportError
			if errors.As(err, &transportErr) {
				return "", err
			}
			return "", &domain.StreamTransportError{Partial: content.String(), Err: err}
		}

		content.WriteString(fragment.MessageDelta)
		if hooks.OnFragment != nil {
			hooks.OnFragment(fragment, content.String())
		}
	}

	p.logger.Debug("relay finished",
		slog.String("model", payload.Model),
		slog.Int("history", len(req.History)),
		slog.Int("length", content.Len()),
	)
	return content.String(), nil
}

func (p *Pipeline) fetchContext(ctx context.Context, query string) string {
	if p.retriever == nil {
		return ""
	}
	contextText, err := p.retriever.FetchContext(ctx, query, p.topK)
	if err != nil {
		// 检索失败不影响本轮对话，按无上下文继续。
		p.logger.Warn("continuing without retrieval context", slog.Any("error", err))
		return ""
	}
	return contextText
}
