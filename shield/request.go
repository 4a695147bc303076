package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/pagedrive/kit"
)

// RequestLogger derives a logger carrying the request id, method and path,
// stores it in the context with the id, and logs each completed request.
// It must run after middleware.RequestID.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			if id != "" {
				w.Header().Set("X-Request-ID", id)
			}
			logger := base.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			ctx = context.WithValue(ctx, LoggerKey, logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.Debug("request", "status", ww.Status(), "bytes", ww.BytesWritten(), "duration", time.Since(start))
		})
	}
}
