package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/medintell/oncochat/backend/internal/domain"
)

const readChunkSize = 4096

// RecordKind classifies one decoded NDJSON line.
type RecordKind int

const (
	// RecordBlank is an empty or whitespace-only line.
	RecordBlank RecordKind = iota
	// RecordFragment carries message.content.
	RecordFragment
	// RecordControl is valid JSON without message.content, such as a stats line.
	RecordControl
	// RecordMalformed is not valid JSON.
	RecordMalformed
)

type streamRecord struct {
	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// DecodeRecord parses one line of the model stream.
func DecodeRecord(line []byte) (Fragment, RecordKind, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Fragment{}, RecordBlank, nil
	}

	var record streamRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return Fragment{}, RecordMalformed, err
	}
	if record.Message == nil || record.Message.Content == nil {
		if record.Error != "" {
			return Fragment{Done: record.Done}, RecordControl, errors.New(record.Error)
		}
		return Fragment{Done: record.Done}, RecordControl, nil
	}
	return Fragment{
		MessageDelta: StripEmphasis(*record.Message.Content),
		Done:         record.Done,
	}, RecordFragment, nil
}

// FragmentReader turns an NDJSON body into fragments. Reads may split lines
// anywhere; the incomplete tail is carried over to the next read.
type FragmentReader struct {
	body    io.ReadCloser
	logger  *slog.Logger
	chunk   []byte
	buf     []byte
	pending []Fragment
	text    strings.Builder
	err     error
}

// NewFragmentReader wraps body. The reader owns body and closes it on Close.
func NewFragmentReader(body io.ReadCloser, logger *slog.Logger) *FragmentReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FragmentReader{
		body:   body,
		logger: logger,
		chunk:  make([]byte, readChunkSize),
	}
}

// Recv returns the next fragment, io.EOF at the end of the body, or a
// *domain.StreamTransportError if reading fails.
func (r *FragmentReader) Recv() (Fragment, error) {
	for {
		if len(r.pending) > 0 {
			next := r.pending[0]
			r.pending = r.pending[1:]
			return next, nil
		}
		if r.err != nil {
			return Fragment{}, r.err
		}

		n, err := r.body.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			r.drainLines()
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			// 末尾没有换行的残留行也当作最后一条记录。
			r.consume(r.buf)
			r.buf = nil
			r.err = io.EOF
			continue
		}
		r.err = &domain.StreamTransportError{Partial: r.text.String(), Err: err}
	}
}

// Text returns all text emitted so far.
func (r *FragmentReader) Text() string {
	return r.text.String()
}

// Close releases the underlying body.
func (r *FragmentReader) Close() error {
	return r.body.Close()
}

func (r *FragmentReader) drainLines() {
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		r.consume(r.buf[:idx])
		r.buf = r.buf[idx+1:]
	}
	if len(r.buf) == 0 {
		r.buf = r.buf[:0]
	}
}

func (r *FragmentReader) consume(line []byte) {
	fragment, kind, err := DecodeRecord(line)
	switch kind {
	case RecordMalformed:
		r.logger.Warn("skipping malformed stream record",
			slog.String("line", snippet(line)),
			slog.Any("error", err),
		)
	case RecordControl:
		if err != nil {
			r.logger.Warn("model stream reported an error", slog.Any("error", err))
		}
	case RecordFragment:
		r.text.WriteString(fragment.MessageDelta)
		r.pending = append(r.pending, fragment)
	}
}

func snippet(line []byte) string {
	const limit = 200
	if len(line) > limit {
		return string(line[:limit]) + "..."
	}
	return string(line)
}
