package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medintell/oncochat/backend/internal/handler/chat"
	"github.com/medintell/oncochat/backend/internal/handler/persona"
	"github.com/medintell/oncochat/backend/internal/handler/proxy"
	"github.com/medintell/oncochat/backend/internal/handler/ws"
	middlewarePkg "github.com/medintell/oncochat/backend/internal/middleware"
	personaModel "github.com/medintell/oncochat/backend/internal/model/persona"
	chatService "github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/internal/service/history"
	"github.com/medintell/oncochat/backend/internal/service/typing"
	"github.com/medintell/oncochat/backend/pkg/utils"
)

// Deps 汇总路由需要的服务。
type Deps struct {
	Personas   personaModel.Store
	Controller *chatService.Controller
	History    *history.Handle
	Ticker     *typing.Ticker
	Logger     *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	if deps.History != nil {
		r.Use(history.Middleware(deps.History))
	}

	r.Get("/health", handleHealth)

	personaHandler := persona.New(deps.Personas)
	chatHandler := chat.New(deps.Controller, deps.Personas, logger)
	proxyHandler := proxy.New(deps.Controller.Pipeline(), logger)
	wsHandler := ws.New(deps.Controller, deps.Ticker, logger)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		proxyHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}

// handleHealth 报告服务与历史存储是否可用
func handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "history": "disabled"}

	if h, err := history.FromContext(r.Context()); err == nil {
		if err := h.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["history"] = err.Error()
			utils.RespondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["history"] = "ok"
	}

	utils.RespondJSON(w, http.StatusOK, body)
}
