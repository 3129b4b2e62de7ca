package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/medintell/oncochat/backend/internal/domain"
	"github.com/medintell/oncochat/backend/internal/model/chat"
	"github.com/medintell/oncochat/backend/internal/service/ai"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sliceStream replays fixed fragments and then returns err (io.EOF when nil).
type sliceStream struct {
	fragments []ai.Fragment
	err       error
	closed    bool
}

func newSliceStream(err error, deltas ...string) *sliceStream {
	s := &sliceStream{err: err}
	for _, d := range deltas {
		s.fragments = append(s.fragments, ai.Fragment{MessageDelta: d})
	}
	return s
}

func (s *sliceStream) Recv() (ai.Fragment, error) {
	if len(s.fragments) > 0 {
		next := s.fragments[0]
		s.fragments = s.fragments[1:]
		return next, nil
	}
	if s.err != nil {
		return ai.Fragment{}, s.err
	}
	return ai.Fragment{}, io.EOF
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// blockingStream emits one fragment and then waits for ctx to end.
type blockingStream struct {
	ctx     context.Context
	started chan struct{}
	sent    bool
}

func (s *blockingStream) Recv() (ai.Fragment, error) {
	if !s.sent {
		s.sent = true
		close(s.started)
		return ai.Fragment{MessageDelta: "partial"}, nil
	}
	<-s.ctx.Done()
	return ai.Fragment{}, &domain.StreamTransportError{Partial: "partial", Err: s.ctx.Err()}
}

func (s *blockingStream) Close() error { return nil }

// memPersister records snapshots in memory.
type memPersister struct {
	mu        sync.Mutex
	snapshots map[string][]chat.Message
	writes    int
}

func newMemPersister() *memPersister {
	return &memPersister{snapshots: make(map[string][]chat.Message)}
}

func (p *memPersister) Load(_ context.Context, key string) ([]chat.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return chat.CloneMessages(p.snapshots[key]), nil
}

func (p *memPersister) Persist(key string, messages []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[key] = chat.CloneMessages(messages)
	p.writes++
}

func (p *memPersister) snapshot(key string) []chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return chat.CloneMessages(p.snapshots[key])
}

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(kind EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) states() []State {
	var out []State
	for _, e := range r.ofType(EventState) {
		out = append(out, e.State)
	}
	return out
}
