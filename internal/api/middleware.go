package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
)

// tempTokenHeader carries the temporary token for deferred login and link
// flows. It is separate from Authorization so a link flow can present both
// the user's login token and the temporary token on the same request.
const tempTokenHeader = "X-Temp-Token"

// bearerToken extracts the caller's token from the Authorization header.
// Both "Bearer <token>" and a raw token value are accepted.
func bearerToken(r *http.Request) (domain.IncomingToken, error) {
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 &&
		strings.EqualFold(parts[0], "Bearer") {
		header = parts[1]
	}
	return domain.NewIncomingToken(header)
}

// tempToken extracts the temporary token from the X-Temp-Token header.
func tempToken(r *http.Request) (domain.IncomingToken, error) {
	return domain.NewIncomingToken(r.Header.Get(tempTokenHeader))
}

// RequestLogger returns a Chi-compatible middleware that logs each request
// using the provided zap logger. It logs method, path, status, and latency.
// Chi's middleware.RequestID is expected to run before this middleware so
// that the request ID is available in the context.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
