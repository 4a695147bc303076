// Package shield holds the HTTP middleware of the pagedrive control API.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger, 1<<20) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Logger returns the per-request logger, or slog.Default() outside a
// request.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// APIStack is the middleware of the control API, outermost first:
// HeadToGet, SecurityHeaders, MaxBody, RequestLogger.
func APIStack(logger *slog.Logger, maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
		RequestLogger(logger),
	}
}

// HeadToGet serves HEAD through the GET routes; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
