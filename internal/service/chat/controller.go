package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medintell/oncochat/backend/internal/analysis/topic"
	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
	"github.com/medintell/oncochat/backend/internal/service/ai"
)

// State is the turn state of a session.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingContext State = "awaiting_context"
	StateAwaitingModel   State = "awaiting_model"
	StateStreaming       State = "streaming"
)

// EventType names what an Event reports.
type EventType string

const (
	EventState   EventType = "state"
	EventUser    EventType = "user"
	EventEdit    EventType = "edit"
	EventDelta   EventType = "delta"
	EventMessage EventType = "message"
	EventError   EventType = "error"
)

// Event is published to observers while a turn progresses.
type Event struct {
	Type      EventType     `json:"event"`
	SessionID string        `json:"sessionId"`
	State     State         `json:"state,omitempty"`
	Index     *int          `json:"index,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Error     string        `json:"error,omitempty"`
	Partial   string        `json:"partial,omitempty"`
}

// Observer receives events on the goroutine running the turn.
type Observer func(Event)

type turn struct {
	cancel context.CancelFunc
	state  State
}

// Controller runs chat turns. A session has at most one turn in flight and
// the in-progress assistant message only reaches history once it completes.
type Controller struct {
	sessions *Service
	pipeline *Pipeline
	personas persona.Store
	gate     bool
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*turn
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithPersonas resolves each session's persona for the system prompt.
func WithPersonas(store persona.Store) ControllerOption {
	return func(c *Controller) {
		c.personas = store
	}
}

// WithTopicGate answers non-medical turns with a canned reply instead of
// calling the upstreams.
func WithTopicGate(enabled bool) ControllerOption {
	return func(c *Controller) {
		c.gate = enabled
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController wires the controller.
func NewController(sessions *Service, pipeline *Pipeline, opts ...ControllerOption) *Controller {
	c := &Controller{
		sessions: sessions,
		pipeline: pipeline,
		logger:   slog.Default(),
		active:   make(map[string]*turn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sessions exposes the underlying session service.
func (c *Controller) Sessions() *Service {
	return c.sessions
}

// Pipeline exposes the relay used for each turn.
func (c *Controller) Pipeline() *Pipeline {
	return c.pipeline
}

// State reports the current turn state of a session.
func (c *Controller) State(sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.active[sessionID]; ok {
		return t.state
	}
	return StateIdle
}

// Submit appends text as a user message and runs a turn. It blocks until the
// assistant reply is committed or the turn fails.
func (c *Controller) Submit(ctx context.Context, sessionID, text, model string, observe Observer) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, domain.Invalid("message", domain.ErrEmptyMessage)
	}
	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	turnCtx, t, err := c.begin(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}
	defer c.finish(sessionID, t, observe)

	return c.run(turnCtx, session, t, text, model, observe)
}

// Edit replaces the content of the user message at index and runs a new turn
// with text appended after the existing history.
func (c *Controller) Edit(ctx context.Context, sessionID string, index int, text, model string, observe Observer) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, domain.Invalid("message", domain.ErrEmptyMessage)
	}
	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	turnCtx, t, err := c.begin(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}
	defer c.finish(sessionID, t, observe)

	edited, err := c.sessions.EditMessage(ctx, sessionID, index, text)
	if err != nil {
		return chat.Message{}, err
	}
	idx := index
	emit(observe, Event{Type: EventEdit, SessionID: sessionID, Index: &idx, Message: &edited})

	return c.run(turnCtx, session, t, text, model, observe)
}

// Cancel aborts the active turn of a session. History keeps its last
// committed state.
func (c *Controller) Cancel(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.active[sessionID]
	if !ok {
		return domain.ErrNoActiveTurn
	}
	t.cancel()
	return nil
}

// Shutdown cancels every active turn.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.active {
		t.cancel()
	}
}

func (c *Controller) begin(ctx context.Context, sessionID string) (context.Context, *turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[sessionID]; busy {
		return nil, nil, domain.ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{cancel: cancel, state: StateIdle}
	c.active[sessionID] = t
	return turnCtx, t, nil
}

// finish releases the session. Idle is only published when the turn got as
// far as leaving Idle, so up-front rejections produce no events.
func (c *Controller) finish(sessionID string, t *turn, observe Observer) {
	c.mu.Lock()
	t.cancel()
	if c.active[sessionID] == t {
		delete(c.active, sessionID)
	}
	progressed := t.state != StateIdle
	c.mu.Unlock()
	if progressed {
		emit(observe, Event{Type: EventState, SessionID: sessionID, State: StateIdle})
	}
}

func (c *Controller) transition(sessionID string, t *turn, state State, observe Observer) {
	c.mu.Lock()
	t.state = state
	c.mu.Unlock()
	emit(observe, Event{Type: EventState, SessionID: sessionID, State: state})
}

func (c *Controller) run(ctx context.Context, session chat.Session, t *turn, text, model string, observe Observer) (chat.Message, error) {
	sessionID := session.ID
	history, err := c.sessions.LoadTranscript(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	userMsg, err := c.sessions.AppendMessage(ctx, sessionID, chat.Message{Role: chat.RoleUser, Content: text})
	if err != nil {
		return chat.Message{}, err
	}
	emit(observe, Event{Type: EventUser, SessionID: sessionID, Message: &userMsg})

	c.transition(sessionID, t, StateAwaitingContext, observe)

	if c.gate {
		if decision := topic.Analyze(text); !decision.Allowed() {
			c.logger.Info("off-topic turn answered locally", slog.String("session", sessionID))
			return c.commit(sessionID, chat.Message{Role: chat.RoleAssistant, Content: topic.FallbackReply(len(history))}, observe)
		}
	}

	req := Request{History: history, UserTurn: text, Model: model}
	if p, ok := persona.Resolve(c.personas, session.PersonaID); ok {
		req.Persona = &p
	}

	var inProgress *chat.Message
	content, err := c.pipeline.Run(ctx, req, Hooks{
		OnContext: func(string) {
			c.transition(sessionID, t, StateAwaitingModel, observe)
		},
		OnFragment: func(fragment ai.Fragment, content string) {
			if inProgress == nil {
				c.transition(sessionID, t, StateStreaming, observe)
				inProgress = &chat.Message{ID: uuid.NewString(), Role: chat.RoleAssistant, CreatedAt: time.Now().UTC()}
			}
			inProgress.Content = content
			snapshot := *inProgress
			emit(observe, Event{Type: EventDelta, SessionID: sessionID, Message: &snapshot, Delta: fragment.MessageDelta})
		},
	})
	if err != nil {
		partial := ""
		var transportErr *domain.StreamTransportError
		if errors.As(err, &transportErr) {
			partial = transportErr.Partial
		}
		c.logger.Warn("turn failed", slog.String("session", sessionID), slog.Any("error", err))
		emit(observe, Event{Type: EventError, SessionID: sessionID, Error: err.Error(), Partial: partial})
		return chat.Message{}, err
	}

	final := chat.Message{Role: chat.RoleAssistant, Content: content}
	if inProgress != nil {
		final.ID = inProgress.ID
		final.CreatedAt = inProgress.CreatedAt
	}
	return c.commit(sessionID, final, observe)
}

func (c *Controller) commit(sessionID string, msg chat.Message, observe Observer) (chat.Message, error) {
	committed, err := c.sessions.AppendMessage(context.Background(), sessionID, msg)
	if err != nil {
		emit(observe, Event{Type: EventError, SessionID: sessionID, Error: err.Error()})
		return chat.Message{}, err
	}
	emit(observe, Event{Type: EventMessage, SessionID: sessionID, Message: &committed})
	return committed, nil
}

func emit(observe Observer, event Event) {
	if observe != nil {
		observe(event)
	}
}
