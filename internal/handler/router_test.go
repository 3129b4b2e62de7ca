package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/medintell/oncochat/backend/internal/model/persona"
	"github.com/medintell/oncochat/backend/internal/service/ai"
	chatService "github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/internal/service/history"
)

type emptyStream struct{}

func (emptyStream) Recv() (ai.Fragment, error) { return ai.Fragment{}, io.EOF }
func (emptyStream) Close() error               { return nil }

type emptyStreamer struct{}

func (emptyStreamer) StreamReply(context.Context, ai.Payload) (ai.FragmentStream, error) {
	return emptyStream{}, nil
}

func newTestRouter(t *testing.T, handle *history.Handle) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := persona.NewMemoryStore(persona.Seed())
	pipeline := chatService.NewPipeline(nil, emptyStreamer{}, ai.NewComposer(persona.Seed()[0], "llama3.2"), 3, logger)
	controller := chatService.NewController(chatService.NewService(), pipeline)
	return NewRouter(Deps{Personas: store, Controller: controller, History: handle, Logger: logger})
}

func TestHealthReportsHistory(t *testing.T) {
	handle := history.NewHandle(t.TempDir(), nil)
	t.Cleanup(func() { handle.Close(context.Background()) })
	r := newTestRouter(t, handle)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "ok" || body["history"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthDegradedWhenHistoryUnavailable(t *testing.T) {
	// 用普通文件占位，目录无法创建。
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}
	r := newTestRouter(t, history.NewHandle(filepath.Join(blocker, "history"), nil))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestRouterMountsAPI(t *testing.T) {
	r := newTestRouter(t, nil)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/personas", http.StatusOK},
		{http.MethodPost, "/api/session", http.StatusCreated},
		{http.MethodGet, "/api/session/missing/history", http.StatusNotFound},
		{http.MethodOptions, "/api/chat", http.StatusNoContent},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}
