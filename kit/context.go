package kit

import "context"

type contextKey int

const (
	transportKey contextKey = iota
	requestIDKey
)

// WithTransport records which surface ("http" or "mcp") a call came in on.
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport returns the recorded transport, or "direct" for calls made
// through the Go API.
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "direct"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
