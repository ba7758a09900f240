package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Policy 按 HTTP 方法列出所需权限，"*" 作为其余方法的兜底。
type Policy map[string][]string

func (p Policy) required(method string) []string {
	if perms, ok := p[method]; ok {
		return perms
	}
	return p["*"]
}

// Require 返回鉴权中间件。认证通过的请求会把 Subject 放入上下文，并在
// 处理结束后写一条 api_request 审计日志；event 为空时使用请求路径。
func (s *Service) Require(event string, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				s.Deny(w, r, err)
				return
			}
			ctx := NewContext(r.Context(), subject)
			if err := subject.Authorize(policy.required(r.Method)...); err != nil {
				s.Deny(w, r.WithContext(ctx), err)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			name := event
			if name == "" {
				name = r.URL.Path
			}
			attrs := []any{
				"event", name,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user", subject.Name,
			}
			if tool := r.PathValue("name"); tool != "" {
				attrs = append(attrs, "tool", tool)
			}
			s.audit.Info("api_request", attrs...)
		})
	}
}

// StatusFor 把鉴权错误映射为 HTTP 状态码：缺少或无效的令牌为 401，其余为 403。
func StatusFor(err error) int {
	if errors.Is(err, ErrMissingToken) || errors.Is(err, ErrInvalidToken) {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// Deny 以 JSON 写出拒绝原因，并记录 access_denied 或 permission_denied 审计日志。
func (s *Service) Deny(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  "UNAUTHORIZED",
	})

	event := "permission_denied"
	if status == http.StatusUnauthorized {
		event = "access_denied"
	}
	s.audit.Warn(event,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"user", NameFromContext(r.Context()),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
