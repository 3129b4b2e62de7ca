package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/medintell/oncochat/backend/internal/domain"
	retrievalModel "github.com/medintell/oncochat/backend/internal/model/retrieval"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
	snippetBytes   = 256
)

// Kind tags the outcome of one retrieval call.
type Kind int

const (
	KindOK Kind = iota
	KindFallback
	KindMalformed
	KindTransportFailure
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindFallback:
		return "fallback"
	case KindMalformed:
		return "malformed"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Result is the decoded response of the retrieval service.
type Result struct {
	Kind      Kind
	Documents []retrievalModel.Document
	// Message is set for KindFallback.
	Message string
	Err     error
}

// Context renders the documents in service order, separated by a blank line.
func (r Result) Context() string {
	if r.Kind != KindOK || len(r.Documents) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Documents))
	for _, doc := range r.Documents {
		parts = append(parts, doc.Render())
	}
	return strings.Join(parts, "\n\n")
}

// Client talks to the literature retrieval service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger sets the logger used for fallback and failure reports.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type queryResponse struct {
	Documents *[]retrievalModel.Document `json:"documents"`
	Message   *string                    `json:"message"`
}

// Query performs one search and classifies the answer.
func (c *Client) Query(ctx context.Context, query string, topK int) Result {
	body, err := json.Marshal(queryRequest{Query: query, TopK: topK})
	if err != nil {
		return Result{Kind: KindTransportFailure, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return Result{Kind: KindTransportFailure, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Kind: KindTransportFailure, Err: &domain.RetrievalError{Err: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{Kind: KindTransportFailure, Err: &domain.RetrievalError{Status: resp.StatusCode, Err: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Kind: KindTransportFailure,
			Err:  &domain.RetrievalError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", snippet(raw))},
		}
	}

	var decoded queryResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{Kind: KindMalformed, Err: formatError(raw, err)}
	}

	switch {
	case decoded.Documents != nil:
		return Result{Kind: KindOK, Documents: *decoded.Documents}
	case decoded.Message != nil:
		return Result{Kind: KindFallback, Message: *decoded.Message}
	default:
		return Result{Kind: KindMalformed, Err: formatError(raw, errors.New("neither documents nor message present"))}
	}
}

// FetchContext returns the rendered context for query. A fallback message is
// logged and yields an empty context without error.
func (c *Client) FetchContext(ctx context.Context, query string, topK int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", domain.Invalid("query", domain.ErrEmptyMessage)
	}
	if topK < 1 {
		return "", domain.Invalid("top_k", domain.ErrInvalidTopK)
	}

	result := c.Query(ctx, query, topK)
	switch result.Kind {
	case KindOK:
		c.logger.Debug("retrieval finished", slog.Int("documents", len(result.Documents)))
		return result.Context(), nil
	case KindFallback:
		c.logger.Warn("retrieval returned no documents", slog.String("message", result.Message))
		return "", nil
	case KindMalformed:
		c.logger.Warn("retrieval payload malformed", slog.Any("error", result.Err))
		return "", &domain.RetrievalError{Err: result.Err}
	default:
		c.logger.Warn("retrieval request failed", slog.Any("error", result.Err))
		var retrievalErr *domain.RetrievalError
		if errors.As(result.Err, &retrievalErr) {
			return "", result.Err
		}
		return "", &domain.RetrievalError{Err: result.Err}
	}
}

func formatError(raw []byte, err error) error {
	return &domain.UpstreamFormatError{Source: "retrieval", Snippet: snippet(raw), Err: err}
}

func snippet(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > snippetBytes {
		return text[:snippetBytes] + "..."
	}
	return text
}
