package history

import (
	"context"
	"errors"
	"net/http"
)

type contextKey string

const handleKey = contextKey("history_handle")

// ErrNoHandle means no handle was attached to the context.
var ErrNoHandle = errors.New("no history handle in context")

// WithHandle returns a copy of ctx carrying h.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey, h)
}

// FromContext retrieves the handle attached by WithHandle or Middleware.
func FromContext(ctx context.Context) (*Handle, error) {
	h, ok := ctx.Value(handleKey).(*Handle)
	if !ok || h == nil {
		return nil, ErrNoHandle
	}
	return h, nil
}

// Middleware attaches h to every request context.
func Middleware(h *Handle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithHandle(r.Context(), h)))
		})
	}
}
