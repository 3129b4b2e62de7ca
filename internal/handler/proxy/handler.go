package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	chatService "github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/pkg/utils"
)

const invalidMessagesText = "No messages provided or invalid format"

// Relayer runs one retrieval + model relay.
type Relayer interface {
	Run(ctx context.Context, req chatService.Request, hooks chatService.Hooks) (string, error)
}

// Handler 无状态的对话代理：客户端携带完整历史，服务端只负责检索与转发。
type Handler struct {
	relay  Relayer
	logger *slog.Logger
}

// New 创建代理处理器
func New(relay Relayer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{relay: relay, logger: logger}
}

// RegisterRoutes 注册代理路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
	Model    string         `json:"model"`
}

type chatResponse struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, invalidMessagesText)
		return
	}
	if !validMessages(payload.Messages) {
		utils.RespondError(w, http.StatusBadRequest, invalidMessagesText)
		return
	}

	last := len(payload.Messages) - 1
	req := chatService.Request{
		History:  payload.Messages[:last],
		UserTurn: payload.Messages[last].Content,
		Model:    payload.Model,
	}

	content, err := h.relay.Run(r.Context(), req, chatService.Hooks{})
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			utils.RespondError(w, http.StatusBadRequest, invalidMessagesText)
			return
		}
		h.logger.Error("chat relay failed", slog.Any("error", err))
		utils.RespondFailure(w, http.StatusInternalServerError, "Internal server error", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Role: chat.RoleAssistant, Content: content})
}

// validMessages 要求非空、角色合法，且最后一条是用户消息。
func validMessages(messages []chat.Message) bool {
	if len(messages) == 0 {
		return false
	}
	for _, msg := range messages {
		if !msg.Role.Valid() {
			return false
		}
	}
	return messages[len(messages)-1].Role == chat.RoleUser
}
