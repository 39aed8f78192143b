package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// requestInfo is filled by Tag once the identity and module of the request are known.
// Logging owns it so the access log can include them after the handler returns.
type requestInfo struct {
	userID string
	role   string
	module string
}

type requestInfoKey struct{}

// Logging assigns a request id (keeping a valid incoming one) and writes one access log line per request
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
				r.Header.Set(RequestIDHeader, requestID)
			}
			w.Header().Set(RequestIDHeader, requestID)

			info := &requestInfo{}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			l := logger.WithRequest(log, r.Method, r.URL.Path, requestID)
			if info.userID != "" {
				l = logger.WithUser(l, info.userID, info.role)
			}
			if info.module != "" {
				l = logger.WithModule(l, info.module)
			}

			l.Info(
				fmt.Sprintf("%s %-30s -> %3d (%s)",
					r.Method,
					r.URL.Path,
					rw.statusCode,
					duration.Truncate(time.Microsecond),
				),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status_code", rw.statusCode),
				zap.Int64("response_size", rw.written),
				zap.Duration("duration", duration),
			)
		})
	}
}

// Tag records the authenticated user and module for the access log. Mount it after
// authentication and module resolution.
func Tag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
			if userCtx, ok := auth.FromContext(r.Context()); ok {
				info.userID = userCtx.UserID.String()
				info.role = string(userCtx.Role)
			}
			if m, ok := auth.ModuleFromContext(r.Context()); ok {
				info.module = string(m.Code)
			}
		}
		next.ServeHTTP(w, r)
	})
}
