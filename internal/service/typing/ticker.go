package typing

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"
)

// Ticker replays a text as successive prefixes, one rune per interval.
type Ticker struct {
	interval time.Duration
}

// New creates a ticker. A non-positive interval emits the full text at once.
func New(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Interval reports the configured step.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Run emits growing prefixes of text until the whole text has been shown or
// ctx is cancelled. Prefixes always end on a rune boundary.
func (t *Ticker) Run(ctx context.Context, text string, emit func(prefix string)) error {
	if t.interval <= 0 || text == "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(text)
		return nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	end := 0
	for end < len(text) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			emit(text[:end])
		}
	}
	return nil
}

// Task is a ticker run in its own goroutine.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Start runs the ticker asynchronously. Stop cancels it.
func (t *Ticker) Start(ctx context.Context, text string, emit func(prefix string)) *Task {
	runCtx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(task.done)
		task.err = t.Run(runCtx, text, emit)
	}()
	return task
}

// Stop cancels the task and waits for it to exit.
func (task *Task) Stop() {
	task.once.Do(task.cancel)
	<-task.done
}

// Wait blocks until the task finishes and returns its error.
func (task *Task) Wait() error {
	<-task.done
	task.once.Do(task.cancel)
	return task.err
}
