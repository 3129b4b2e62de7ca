package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/medintell/oncochat/backend/internal/model/chat"
)

// writer persists snapshots in the background. Pending snapshots for the same
// key are coalesced so only the latest one is written.
type writer struct {
	store  *FileStore
	logger *slog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	pending map[string][]chat.Message
	writing bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newWriter(store *FileStore, logger *slog.Logger) *writer {
	w := &writer{
		store:   store,
		logger:  logger,
		pending: make(map[string][]chat.Message),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.idle = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *writer) enqueue(key string, messages []chat.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[key] = messages
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.done)
	for range w.wake {
		w.drain()
	}
	w.drain()
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.writing = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
		batch := w.pending
		w.pending = make(map[string][]chat.Message)
		w.writing = true
		w.mu.Unlock()

		for key, messages := range batch {
			if err := w.store.Save(context.Background(), key, messages); err != nil {
				w.logger.Error("persist history failed", slog.String("key", key), slog.Any("error", err))
			}
		}
	}
}

// flush waits until every snapshot queued so far has been written.
func (w *writer) flush(ctx context.Context) error {
	settled := make(chan struct{})
	go func() {
		w.mu.Lock()
		for len(w.pending) > 0 || w.writing {
			w.idle.Wait()
		}
		w.mu.Unlock()
		close(settled)
	}()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.wake)
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
