package ratelimit

import (
	"net/http"

	"slidingwindow-gateway/logger"

	"github.com/google/uuid"
)

// WithRequestID garante um X-Request-ID e coloca no contexto um logger com ele.
func WithRequestID(base *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lg := base
			if lg == nil {
				lg = logger.FromContext(r.Context())
			}

			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}

			ctx := logger.WithRequestID(r.Context(), id)
			ctx = logger.WithContext(ctx, lg.With(string(logger.RequestIDKey), id))

			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
