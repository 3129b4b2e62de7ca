package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/medintell/oncochat/backend/internal/domain"
	model "github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
	chat "github.com/medintell/oncochat/backend/internal/service/chat"
)

type stubPersister struct {
	stored map[string][]model.Message
	writes int
}

func (p *stubPersister) Load(_ context.Context, key string) ([]model.Message, error) {
	return model.CloneMessages(p.stored[key]), nil
}

func (p *stubPersister) Persist(key string, messages []model.Message) {
	p.stored[key] = model.CloneMessages(messages)
	p.writes++
}

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "oncology")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.PersonaID != "oncology" {
		t.Fatalf("unexpected persona ID: got %s", got.PersonaID)
	}
}

func TestServiceCreateSessionDefaultsPersona(t *testing.T) {
	svc := chat.NewService()

	session, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.PersonaID != persona.DefaultID {
		t.Fatalf("unexpected persona ID: got %s", session.PersonaID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceRestoresPersistedHistory(t *testing.T) {
	store := &stubPersister{stored: map[string][]model.Message{
		"chatMessages": {
			{ID: "1", Role: model.RoleUser, Content: "What is HER2?"},
			{ID: "2", Role: model.RoleAssistant, Content: "A receptor protein."},
		},
	}}
	svc := chat.NewService(chat.WithPersister(store))
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, "chatMessages", "")
	if err != nil {
		t.Fatalf("OpenSession err: %v", err)
	}
	if session.ID != "chatMessages" {
		t.Fatalf("unexpected session ID: %s", session.ID)
	}

	transcript, err := svc.LoadTranscript(ctx, "chatMessages")
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 || transcript[1].Content != "A receptor protein." {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
	if store.writes != 0 {
		t.Fatalf("restore must not write, got %d writes", store.writes)
	}
}

func TestServiceOpenSessionCreatesEmpty(t *testing.T) {
	store := &stubPersister{stored: map[string][]model.Message{}}
	svc := chat.NewService(chat.WithPersister(store))
	ctx := context.Background()

	if _, err := svc.OpenSession(ctx, "fresh", ""); err != nil {
		t.Fatalf("OpenSession err: %v", err)
	}
	transcript, err := svc.LoadTranscript(ctx, "fresh")
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(transcript))
	}
}

func TestServiceAppendAndEdit(t *testing.T) {
	store := &stubPersister{stored: map[string][]model.Message{}}
	svc := chat.NewService(chat.WithPersister(store))
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	msg, err := svc.AppendMessage(ctx, session.ID, model.Message{Role: model.RoleUser, Content: "q1"})
	if err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", msg)
	}
	if _, err := svc.AppendMessage(ctx, session.ID, model.Message{Role: model.RoleAssistant, Content: "a1"}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	edited, err := svc.EditMessage(ctx, session.ID, 0, "q1 revised")
	if err != nil {
		t.Fatalf("EditMessage err: %v", err)
	}
	if edited.ID != msg.ID || edited.Content != "q1 revised" {
		t.Fatalf("unexpected edited message: %+v", edited)
	}
	if got := store.stored[session.ID]; len(got) != 2 || got[0].Content != "q1 revised" {
		t.Fatalf("persisted snapshot out of date: %+v", got)
	}
	if store.writes != 3 {
		t.Fatalf("expected a snapshot per mutation, got %d", store.writes)
	}
}

func TestServiceRejectsInvalidMutations(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "")
	if _, err := svc.AppendMessage(ctx, session.ID, model.Message{Role: model.RoleAssistant, Content: "a"}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	var validationErr *domain.ValidationError
	if _, err := svc.AppendMessage(ctx, session.ID, model.Message{Role: "tool", Content: "x"}); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for unknown role, got %v", err)
	}
	if _, err := svc.EditMessage(ctx, session.ID, 0, "x"); !errors.Is(err, domain.ErrNotUserMessage) {
		t.Fatalf("expected ErrNotUserMessage, got %v", err)
	}
	if _, err := svc.EditMessage(ctx, session.ID, -1, "x"); !errors.Is(err, domain.ErrMessageIndex) {
		t.Fatalf("expected ErrMessageIndex, got %v", err)
	}
	if _, err := svc.AppendMessage(ctx, "missing", model.Message{Role: model.RoleUser, Content: "x"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceClearHistory(t *testing.T) {
	store := &stubPersister{stored: map[string][]model.Message{}}
	svc := chat.NewService(chat.WithPersister(store))
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "")
	if _, err := svc.AppendMessage(ctx, session.ID, model.Message{Role: model.RoleUser, Content: "q"}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if err := svc.ClearHistory(ctx, session.ID); err != nil {
		t.Fatalf("ClearHistory err: %v", err)
	}

	transcript, _ := svc.LoadTranscript(ctx, session.ID)
	if len(transcript) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(transcript))
	}
	if got, ok := store.stored[session.ID]; !ok || len(got) != 0 {
		t.Fatalf("expected empty persisted snapshot, got %+v", got)
	}
}
