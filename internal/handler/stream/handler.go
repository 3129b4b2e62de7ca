package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/medintell/oncochat/backend/internal/model/chat"
	chatService "github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/pkg/utils"
)

// ErrStreamingUnsupported 表示 ResponseWriter 不支持 Flush。
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string        `json:"event"`
	SessionID string        `json:"sessionId,omitempty"`
	State     string        `json:"state,omitempty"`
	Index     *int          `json:"index,omitempty"`
	Content   string        `json:"content,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Partial   string        `json:"partial,omitempty"`
	Finished  bool          `json:"finished,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Writer republishes controller events as Server-Sent Events. Headers are
// only written with the first event so callers can still answer with a plain
// JSON error when a turn is rejected up front.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	broken  bool
}

// NewWriter wraps w for streaming.
func NewWriter(w http.ResponseWriter, logger *slog.Logger) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{w: w, flusher: flusher, logger: logger}, nil
}

// Started reports whether any event has been written.
func (s *Writer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Observe is a chatService.Observer.
func (s *Writer) Observe(event chatService.Event) {
	s.send(FromEvent(event))
}

// SendError 发送一个错误块
func (s *Writer) SendError(sessionID, message string) {
	s.send(StreamResponse{Event: "error", SessionID: sessionID, Error: message})
}

// End 发送结束标记
func (s *Writer) End(sessionID string) {
	s.send(StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
}

func (s *Writer) send(resp StreamResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	if !s.started {
		utils.SetupSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := utils.SendSSEChunk(s.w, s.flusher, resp); err != nil {
		// 客户端断开后不再写入，turn 会随请求 context 取消。
		s.broken = true
		s.logger.Debug("sse write failed", slog.String("session", resp.SessionID), slog.Any("error", err))
	}
}

// FromEvent converts a controller event into its wire chunk.
func FromEvent(event chatService.Event) StreamResponse {
	resp := StreamResponse{
		Event:     string(event.Type),
		SessionID: event.SessionID,
		State:     string(event.State),
		Index:     event.Index,
		Message:   event.Message,
		Delta:     event.Delta,
		Partial:   event.Partial,
		Error:     event.Error,
	}
	if event.Message != nil {
		resp.Content = event.Message.Content
	}
	if event.Type == chatService.EventMessage {
		resp.Finished = true
	}
	return resp
}
