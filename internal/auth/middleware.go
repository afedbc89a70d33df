package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/payflow/payflow/internal/shared"
)

// Middleware authenticates every request with a bearer API key and installs
// the resulting principal on the request context. Requests without a valid
// key are rejected with 401.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}
			principal, err := service.Authenticate(r.Context(), token)
			if err != nil {
				logger.Info("authentication rejected",
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr),
				)
				unauthorized(w)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const scheme = "Bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	return strings.TrimSpace(header[len(scheme):]), true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthenticated","message":"valid API key required"}}`))
}
