package auth

import "context"

type contextKey struct{}

// anonymous 是鉴权关闭或未认证时审计日志里的调用方名称。
const anonymous = "anonymous"

// NewContext 返回携带 subject 的上下文。
func NewContext(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, subject)
}

// FromContext 取出中间件写入的调用方。
func FromContext(ctx context.Context) (*Subject, bool) {
	if ctx == nil {
		return nil, false
	}
	subject, ok := ctx.Value(contextKey{}).(*Subject)
	return subject, ok && subject != nil
}

// NameFromContext 返回调用方名称，没有时为 anonymous。
func NameFromContext(ctx context.Context) string {
	if subject, ok := FromContext(ctx); ok && subject.Name != "" {
		return subject.Name
	}
	return anonymous
}
