package api

import (
	"net/http"
	"strings"
	"time"

	"WaxAgentKit/internal/auth"
	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/observability/metrics"
	"WaxAgentKit/internal/ratelimit"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// rateLimit 按访问令牌或客户端 IP 限流，健康检查与指标不受限。
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := ratelimit.KeyFromRequest(r, bearerToken(r))
		if !s.deps.Limiter.Allow(key, time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeError(w, xerrors.New(xerrors.CodeRateLimited, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken 返回令牌摘要，避免在限流表中保存明文。
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return ""
	}
	return auth.HashToken(token)
}
