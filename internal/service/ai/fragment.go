package ai

import (
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/medintell/oncochat/backend/internal/domain"
)

// Fragment is one incremental piece of assistant text.
type Fragment struct {
	MessageDelta string `json:"delta"`
	Done         bool   `json:"done,omitempty"`
}

// FragmentStream is a finite, non-restartable sequence of fragments. Recv
// returns io.EOF after the last fragment and a *domain.StreamTransportError
// when the transport fails.
type FragmentStream interface {
	Recv() (Fragment, error)
	Close() error
}

// StripEmphasis removes markdown bold markers from model output.
func StripEmphasis(text string) string {
	return strings.ReplaceAll(text, "**", "")
}

// messageStream adapts an eino message stream to a FragmentStream.
type messageStream struct {
	reader  *schema.StreamReader[*schema.Message]
	partial strings.Builder
	done    bool
}

func newMessageStream(reader *schema.StreamReader[*schema.Message]) *messageStream {
	return &messageStream{reader: reader}
}

func (s *messageStream) Recv() (Fragment, error) {
	for {
		if s.done {
			return Fragment{}, io.EOF
		}

		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return Fragment{}, io.EOF
		}
		if err != nil {
			s.done = true
			var transportErr *domain.StreamTransportError
			if errors.As(err, &transportErr) {
				return Fragment{}, err
			}
			return Fragment{}, &domain.StreamTransportError{Partial: s.partial.String(), Err: err}
		}
		if chunk == nil {
			continue
		}

		fragment := Fragment{
			MessageDelta: StripEmphasis(chunk.Content),
			Done:         chunk.ResponseMeta != nil && chunk.ResponseMeta.FinishReason != "",
		}
		s.partial.WriteString(fragment.MessageDelta)
		return fragment, nil
	}
}

func (s *messageStream) Close() error {
	s.reader.Close()
	return nil
}

// Collect drains stream and returns the concatenated text.
func Collect(stream FragmentStream) (string, error) {
	defer stream.Close()

	var b strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment.MessageDelta)
	}
}
