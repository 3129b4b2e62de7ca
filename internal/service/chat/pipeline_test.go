package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/model/persona"
	"github.com/medintell/oncochat/backend/internal/service/ai"
)

func newTestPipeline(t *testing.T, withRetriever bool) (*Pipeline, *MockRetriever, *MockStreamer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	retriever := NewMockRetriever(ctrl)
	streamer := NewMockStreamer(ctrl)

	var r Retriever
	if withRetriever {
		r = retriever
	}
	composer := ai.NewComposer(persona.Seed()[0], "llama3.2")
	return NewPipeline(r, streamer, composer, 3, quietLogger()), retriever, streamer
}

func TestPipelineRunHooksAndModelOverride(t *testing.T) {
	pipeline, retriever, streamer := newTestPipeline(t, true)
	stream := newSliceStream(nil, "**Metformin**", " lowers glucose")

	gomock.InOrder(
		retriever.EXPECT().FetchContext(gomock.Any(), "metformin", 3).Return("ctx", nil),
		streamer.EXPECT().StreamReply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, payload ai.Payload) (ai.FragmentStream, error) {
				if payload.Model != "llama3.1:70b" {
					t.Errorf("expected request override, got %s", payload.Model)
				}
				return stream, nil
			}),
	)

	var contexts []string
	var snapshots []string
	content, err := pipeline.Run(context.Background(), Request{UserTurn: "metformin", Model: "llama3.1:70b"}, Hooks{
		OnContext: func(text string) { contexts = append(contexts, text) },
		OnFragment: func(_ ai.Fragment, content string) {
			snapshots = append(snapshots, content)
		},
	})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if content != "**Metformin** lowers glucose" {
		t.Fatalf("unexpected content: %q", content)
	}
	if len(contexts) != 1 || contexts[0] != "ctx" {
		t.Fatalf("unexpected context hook calls: %v", contexts)
	}
	if len(snapshots) != 2 || snapshots[1] != content {
		t.Fatalf("unexpected snapshots: %v", snapshots)
	}
	if !stream.closed {
		t.Fatal("stream should be closed after the run")
	}
}

func TestPipelineRunWithoutRetriever(t *testing.T) {
	pipeline, _, streamer := newTestPipeline(t, false)

	streamer.EXPECT().StreamReply(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, payload ai.Payload) (ai.FragmentStream, error) {
			if payload.Model != "llama3.2" {
				t.Errorf("expected default model, got %s", payload.Model)
			}
			return newSliceStream(nil, "ok"), nil
		})

	content, err := pipeline.Run(context.Background(), Request{UserTurn: "hello"}, Hooks{})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if content != "ok" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestPipelineRunUsesRequestPersonaAndHistory(t *testing.T) {
	pipeline, retriever, streamer := newTestPipeline(t, true)
	oncology := persona.Seed()[1]
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "q1"},
		{Role: chat.RoleAssistant, Content: "a1"},
	}

	retriever.EXPECT().FetchContext(gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)
	streamer.EXPECT().StreamReply(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, payload ai.Payload) (ai.FragmentStream, error) {
			if !strings.Contains(payload.Messages[0].Content, oncology.Name) {
				t.Errorf("system prompt should speak as %s", oncology.Name)
			}
			if len(payload.Messages) != 4 || payload.Messages[2].Content != "a1" {
				t.Errorf("history not carried in order: %d messages", len(payload.Messages))
			}
			return newSliceStream(nil, "a2"), nil
		})

	if _, err := pipeline.Run(context.Background(), Request{History: history, UserTurn: "q2", Persona: &oncology}, Hooks{}); err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if len(history) != 2 {
		t.Fatal("history must not be mutated")
	}
	if pipeline.Composer().Persona().ID != persona.DefaultID {
		t.Fatal("request persona must not leak into the shared composer")
	}
}

func TestPipelineRunWrapsStreamErrors(t *testing.T) {
	pipeline, retriever, streamer := newTestPipeline(t, true)
	cause := errors.New("unexpected EOF")

	retriever.EXPECT().FetchContext(gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)
	streamer.EXPECT().StreamReply(gomock.Any(), gomock.Any()).Return(newSliceStream(cause, "Hel", "lo"), nil)

	_, err := pipeline.Run(context.Background(), Request{UserTurn: "q"}, Hooks{})
	var transportErr *domain.StreamTransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected StreamTransportError, got %v", err)
	}
	if transportErr.Partial != "Hello" {
		t.Fatalf("unexpected partial: %q", transportErr.Partial)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should stay reachable")
	}
}

func TestPipelineRunRejectsEmptyTurn(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t, true)

	var validationErr *domain.ValidationError
	if _, err := pipeline.Run(context.Background(), Request{UserTurn: " "}, Hooks{}); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPipelineRunStopsWhenCancelledDuringRetrieval(t *testing.T) {
	pipeline, retriever, _ := newTestPipeline(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	retriever.EXPECT().FetchContext(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string, int) (string, error) {
			cancel()
			return "", context.Canceled
		})

	if _, err := pipeline.Run(ctx, Request{UserTurn: "q"}, Hooks{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
