package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/medintell/oncochat/backend/internal/model/chat"
)

// ErrClosed is returned once the handle has been closed.
var ErrClosed = errors.New("history handle closed")

// Handle owns the history store. The directory and background writer are
// created on first use and released by Close.
type Handle struct {
	dir    string
	logger *slog.Logger

	once   sync.Once
	store  *FileStore
	writer *writer
	err    error

	mu     sync.Mutex
	closed bool
}

// NewHandle returns an unopened handle rooted at dir.
func NewHandle(dir string, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{dir: dir, logger: logger}
}

func (h *Handle) open() error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	h.once.Do(func() {
		store, err := NewFileStore(h.dir)
		if err != nil {
			h.err = err
			return
		}
		h.store = store
		h.writer = newWriter(store, h.logger)
		h.logger.Info("history store opened", slog.String("dir", h.dir))
	})
	return h.err
}

// Load returns the last persisted snapshot for key, or nil when none exists.
func (h *Handle) Load(ctx context.Context, key string) ([]chat.Message, error) {
	if err := h.open(); err != nil {
		return nil, err
	}
	return h.store.Load(ctx, key)
}

// Persist queues a snapshot of messages for key and returns immediately.
func (h *Handle) Persist(key string, messages []chat.Message) {
	if err := h.open(); err != nil {
		h.logger.Warn("history unavailable, snapshot dropped", slog.String("key", key), slog.Any("error", err))
		return
	}
	snapshot := chat.CloneMessages(messages)
	if snapshot == nil {
		snapshot = []chat.Message{}
	}
	h.writer.enqueue(key, snapshot)
}

// Flush blocks until queued snapshots are on disk.
func (h *Handle) Flush(ctx context.Context) error {
	if err := h.open(); err != nil {
		return err
	}
	return h.writer.flush(ctx)
}

// Close drains pending snapshots and stops the writer. It is safe to call on
// a handle that was never used.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.once.Do(func() { h.err = ErrClosed })
	if h.writer == nil {
		return nil
	}
	return h.writer.close(ctx)
}

// Ping opens the handle if needed and reports whether snapshots can be stored.
func (h *Handle) Ping(context.Context) error {
	return h.open()
}

// Dir reports the snapshot directory.
func (h *Handle) Dir() string {
	return h.dir
}
