package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medintell/oncochat/backend/internal/config"
	"github.com/medintell/oncochat/backend/internal/model/persona"
	"github.com/medintell/oncochat/backend/internal/service/ai"
	"github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/internal/service/history"
	"github.com/medintell/oncochat/backend/internal/service/retrieval"
	"github.com/medintell/oncochat/backend/internal/service/typing"
)

// App 持有进程内的全部服务，main 与命令行工具共用同一套装配。
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Personas   persona.Store
	History    *history.Handle
	Sessions   *chat.Service
	AI         *ai.Service
	Pipeline   *chat.Pipeline
	Controller *chat.Controller
	Ticker     *typing.Ticker
}

// Build wires the services described by cfg. The history handle is not
// opened until the default session is restored.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	personas := persona.NewMemoryStore(persona.Seed())
	handle := history.NewHandle(cfg.History.Dir, logger.With(slog.String("component", "history")))
	sessions := chat.NewService(
		chat.WithPersister(handle),
		chat.WithLogger(logger.With(slog.String("component", "chat"))),
	)

	if _, err := sessions.OpenSession(ctx, cfg.History.SessionKey, persona.DefaultID); err != nil {
		return nil, fmt.Errorf("open default session: %w", err)
	}

	chatModel, err := ai.NewChatModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	aiService := ai.NewService(chatModel, logger.With(slog.String("component", "ai")))

	var retriever chat.Retriever
	if cfg.Retrieval.Enabled {
		retriever = retrieval.NewClient(cfg.Retrieval.URL,
			retrieval.WithTimeout(cfg.Retrieval.Timeout),
			retrieval.WithLogger(logger.With(slog.String("component", "retrieval"))),
		)
	} else {
		logger.Info("retrieval disabled, prompts carry no context")
	}

	defaultPersona, _ := persona.Resolve(personas, persona.DefaultID)
	composerOpts := []ai.ComposerOption{ai.WithTokenBudget(cfg.Model.HistoryTokenBudget)}
	if cfg.Model.HistoryTokenBudget > 0 {
		composerOpts = append(composerOpts, ai.WithTokenCounter(ai.NewTiktokenCounter()))
	}
	composer := ai.NewComposer(defaultPersona, cfg.Model.Name, composerOpts...)

	pipeline := chat.NewPipeline(retriever, aiService, composer, cfg.Retrieval.TopK, logger.With(slog.String("component", "relay")))
	controller := chat.NewController(sessions, pipeline,
		chat.WithPersonas(personas),
		chat.WithTopicGate(cfg.TopicGate.Enabled),
		chat.WithControllerLogger(logger.With(slog.String("component", "controller"))),
	)

	logger.Info("services initialised",
		slog.String("provider", string(cfg.Model.Provider)),
		slog.String("model", cfg.Model.Name),
		slog.Bool("retrieval", cfg.Retrieval.Enabled),
		slog.Bool("topic_gate", cfg.TopicGate.Enabled),
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Personas:   personas,
		History:    handle,
		Sessions:   sessions,
		AI:         aiService,
		Pipeline:   pipeline,
		Controller: controller,
		Ticker:     typing.New(cfg.Typing.Interval),
	}, nil
}

// Close cancels active turns and flushes pending history snapshots.
func (a *App) Close(ctx context.Context) error {
	a.Controller.Shutdown()
	return a.History.Close(ctx)
}
