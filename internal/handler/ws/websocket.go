package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	chatService "github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/internal/service/typing"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket 实时对话通道
type Handler struct {
	controller *chatService.Controller
	ticker     *typing.Ticker
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// New 创建WebSocket处理器
func New(controller *chatService.Controller, ticker *typing.Ticker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if ticker == nil {
		ticker = typing.New(0)
	}
	return &Handler{
		controller: controller,
		ticker:     ticker,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SubmitMessage 提交一条用户消息
type SubmitMessage struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// EditMessage 编辑历史中的用户消息并重新生成
type EditMessage struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Typing *bool  `json:"typing,omitempty"`
	Model  string `json:"model"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connection struct {
	conn      *websocket.Conn
	sessionID string
	writeMu   sync.Mutex

	mu     sync.Mutex
	typing bool
	model  string
	replay *typing.Task
}

func newConnection(conn *websocket.Conn, sessionID string) *connection {
	return &connection{conn: conn, sessionID: sessionID}
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.controller.Sessions().GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	h.logger.Info("websocket connected", slog.String("session", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
	}()

	c := newConnection(conn, sessionID)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, c)

	h.send(c, "connected", map[string]any{
		"persona": session.PersonaID,
		"state":   h.controller.State(sessionID),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", slog.String("session", sessionID), slog.Any("error", err))
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(c, "session mismatch")
			continue
		}

		h.handleMessage(ctx, c, &turns, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, turns *sync.WaitGroup, msg *inboundMessage) {
	switch msg.Type {
	case "submit":
		var payload SubmitMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid submit payload")
			return
		}
		model := c.modelOr(payload.Model)
		h.startTurn(ctx, c, turns, func(observe chatService.Observer) (chat.Message, error) {
			return h.controller.Submit(ctx, c.sessionID, payload.Text, model, observe)
		})
	case "edit":
		var payload EditMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid edit payload")
			return
		}
		model := c.modelOr(payload.Model)
		h.startTurn(ctx, c, turns, func(observe chatService.Observer) (chat.Message, error) {
			return h.controller.Edit(ctx, c.sessionID, payload.Index, payload.Text, model, observe)
		})
	case "cancel":
		if c.stopReplay() {
			return
		}
		if err := h.controller.Cancel(c.sessionID); err != nil {
			h.sendError(c, err.Error())
		}
	case "config":
		var cfg ConfigMessage
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			h.sendError(c, "invalid config payload")
			return
		}
		h.applyConfig(c, cfg)
		h.send(c, "config", c.snapshot())
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// startTurn 在独立 goroutine 中运行一轮对话，读循环可以继续处理 cancel。
func (h *Handler) startTurn(ctx context.Context, c *connection, turns *sync.WaitGroup, run func(chatService.Observer) (chat.Message, error)) {
	typingMode := c.typingEnabled()

	turns.Add(1)
	go func() {
		defer turns.Done()

		// observer 与 run 在同一个 goroutine 上执行。
		published := false
		observe := func(event chatService.Event) {
			published = true
			if typingMode && (event.Type == chatService.EventDelta || event.Type == chatService.EventMessage) {
				return
			}
			h.send(c, string(event.Type), event)
		}

		reply, err := run(observe)
		if err != nil {
			if !published {
				h.sendError(c, err.Error())
			}
			if !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrTurnInProgress) {
				h.logger.Info("websocket turn failed", slog.String("session", c.sessionID), slog.Any("error", err))
			}
			return
		}

		if typingMode {
			h.replay(ctx, c, reply)
		}
	}()
}

// replay 以打字机效果逐步推送最终回复，结束后再发送完整消息。
func (h *Handler) replay(ctx context.Context, c *connection, reply chat.Message) {
	task := h.ticker.Start(ctx, reply.Content, func(prefix string) {
		h.send(c, "typing", map[string]any{
			"id":      reply.ID,
			"content": prefix,
		})
	})
	c.setReplay(task)
	err := task.Wait()
	c.setReplay(nil)

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		h.logger.Debug("typing replay stopped", slog.String("session", c.sessionID), slog.Any("error", err))
	}
	h.send(c, string(chatService.EventMessage), chatService.Event{
		Type:      chatService.EventMessage,
		SessionID: c.sessionID,
		Message:   &reply,
	})
}

func (h *Handler) applyConfig(c *connection, cfg ConfigMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.Typing != nil {
		c.typing = *cfg.Typing
	}
	if model := strings.TrimSpace(cfg.Model); model != "" {
		c.model = model
	}
}

func (c *connection) typingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

func (c *connection) modelOr(override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

func (c *connection) snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{"typing": c.typing, "model": c.model}
}

func (c *connection) setReplay(task *typing.Task) {
	c.mu.Lock()
	c.replay = task
	c.mu.Unlock()
}

// stopReplay 终止正在进行的打字回放，没有回放时返回 false。
func (c *connection) stopReplay() bool {
	c.mu.Lock()
	task := c.replay
	c.mu.Unlock()
	if task == nil {
		return false
	}
	task.Stop()
	return true
}

func (h *Handler) send(c *connection, kind string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", slog.String("type", kind), slog.Any("error", err))
	}
}

func (h *Handler) sendError(c *connection, message string) {
	h.send(c, "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
