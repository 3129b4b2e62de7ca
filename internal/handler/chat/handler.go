package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/handler/stream"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
	chatService "github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/pkg/utils"
)

// Handler 会话接口：创建会话、读取历史、提交/编辑消息（SSE）、取消与清空。
type Handler struct {
	controller   *chatService.Controller
	personaStore persona.Store
	logger       *slog.Logger
}

// New 创建聊天处理器
func New(controller *chatService.Controller, personaStore persona.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		controller:   controller,
		personaStore: personaStore,
		logger:       logger,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/history", h.handleHistory)
		r.Delete("/history", h.handleClearHistory)
		r.Post("/messages", h.handleSubmit)
		r.Put("/messages/{index}", h.handleEdit)
		r.Delete("/turn", h.handleCancel)
	})
}

type historyResponse struct {
	SessionID string         `json:"sessionId"`
	PersonaID string         `json:"personaId"`
	State     string         `json:"state"`
	Messages  []chat.Message `json:"messages"`
}

type turnRequest struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// handleCreateSession 创建会话，personaId 为空时使用默认医学助手
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if payload.PersonaID != "" {
		if _, ok := h.personaStore.FindByID(payload.PersonaID); !ok {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
	}

	session, err := h.controller.Sessions().CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sessions := h.controller.Sessions()

	session, err := sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	messages, err := sessions.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, historyResponse{
		SessionID: session.ID,
		PersonaID: session.PersonaID,
		State:     string(h.controller.State(sessionID)),
		Messages:  messages,
	})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if h.controller.State(sessionID) != chatService.StateIdle {
		h.respondErr(w, domain.ErrTurnInProgress)
		return
	}
	if err := h.controller.Sessions().ClearHistory(r.Context(), sessionID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Cancel(chi.URLParam(r, "sessionID")); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSubmit 追加用户消息并以 SSE 推送本轮回复
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	payload, ok := decodeTurn(w, r)
	if !ok {
		return
	}

	h.streamTurn(w, r, sessionID, func(observe chatService.Observer) error {
		_, err := h.controller.Submit(r.Context(), sessionID, payload.Content, payload.Model, observe)
		return err
	})
}

// handleEdit 修改历史中的用户消息并重新生成回复
func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid message index")
		return
	}
	payload, ok := decodeTurn(w, r)
	if !ok {
		return
	}

	h.streamTurn(w, r, sessionID, func(observe chatService.Observer) error {
		_, err := h.controller.Edit(r.Context(), sessionID, index, payload.Content, payload.Model, observe)
		return err
	})
}

func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, sessionID string, run func(chatService.Observer) error) {
	writer, err := stream.NewWriter(w, h.logger)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	err = run(writer.Observe)
	if err != nil && !writer.Started() {
		// 在进入状态机之前就被拒绝，按普通 JSON 错误返回。
		h.respondErr(w, err)
		return
	}
	if err != nil {
		h.logger.Info("turn ended with error",
			slog.String("session", sessionID),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	writer.End(sessionID)
}

func decodeTurn(w http.ResponseWriter, r *http.Request) (turnRequest, bool) {
	var payload turnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return payload, false
	}
	return payload, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("session request failed", slog.Any("error", err))
		utils.RespondFailure(w, status, "Internal server error", err)
		return
	}
	utils.RespondError(w, status, err.Error())
}

func statusFor(err error) int {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress), errors.Is(err, domain.ErrNoActiveTurn):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
