package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
)

// Persister stores history snapshots outside the process.
type Persister interface {
	Load(ctx context.Context, key string) ([]chat.Message, error)
	Persist(key string, messages []chat.Message)
}

// Service owns sessions and their ordered histories. Every mutation is
// followed by a fire-and-forget snapshot to the persister.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	store    Persister
	logger   *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithPersister enables snapshot persistence and restore.
func WithPersister(store Persister) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService bootstraps the in-memory chat service.
func NewService(opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions a new session bound to a persona.
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Session, error) {
	if personaID == "" {
		personaID = persona.DefaultID
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// OpenSession returns the session stored under id, restoring its persisted
// history or creating it empty when nothing exists yet.
func (s *Service) OpenSession(ctx context.Context, id, personaID string) (chat.Session, error) {
	if session, err := s.GetSession(ctx, id); err == nil {
		return session, nil
	}
	if personaID == "" {
		personaID = persona.DefaultID
	}

	session := chat.Session{ID: id, PersonaID: personaID, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = session
	s.messages[id] = make([]chat.Message, 0, 16)
	return session, nil
}

// GetSession retrieves a session, restoring it from the persister when it is
// not in memory.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return session, nil
	}
	return s.restore(ctx, sessionID)
}

func (s *Service) restore(ctx context.Context, sessionID string) (chat.Session, error) {
	if s.store == nil || sessionID == "" {
		return chat.Session{}, domain.ErrSessionNotFound
	}

	messages, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.logger.Warn("restore history failed", slog.String("session", sessionID), slog.Any("error", err))
		return chat.Session{}, domain.ErrSessionNotFound
	}
	if messages == nil {
		return chat.Session{}, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		return existing, nil
	}

	session := chat.Session{ID: sessionID, PersonaID: persona.DefaultID, CreatedAt: time.Now().UTC()}
	s.sessions[sessionID] = session
	s.messages[sessionID] = messages
	s.logger.Info("history restored", slog.String("session", sessionID), slog.Int("messages", len(messages)))
	return session, nil
}

// AppendMessage adds message to the end of the session history.
func (s *Service) AppendMessage(_ context.Context, sessionID string, message chat.Message) (chat.Message, error) {
	if !message.Role.Valid() {
		return chat.Message{}, domain.Invalid("role", domain.ErrUnknownRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return chat.Message{}, domain.ErrSessionNotFound
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[sessionID] = append(s.messages[sessionID], message)
	s.persistLocked(sessionID)
	return message, nil
}

// EditMessage replaces the content of the user message at index.
func (s *Service) EditMessage(_ context.Context, sessionID string, index int, content string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return chat.Message{}, domain.ErrSessionNotFound
	}
	if index < 0 || index >= len(messages) {
		return chat.Message{}, domain.Invalid("index", domain.ErrMessageIndex)
	}
	if messages[index].Role != chat.RoleUser {
		return chat.Message{}, domain.Invalid("index", domain.ErrNotUserMessage)
	}

	messages[index].Content = content
	s.persistLocked(sessionID)
	return messages[index], nil
}

// LoadTranscript returns a copy of the stored messages for the session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return chat.CloneMessages(s.messages[sessionID]), nil
}

// ClearHistory drops every message of the session.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = make([]chat.Message, 0, 16)
	s.persistLocked(sessionID)
	return nil
}

func (s *Service) persistLocked(sessionID string) {
	if s.store == nil {
		return
	}
	s.store.Persist(sessionID, s.messages[sessionID])
}
