// Package errors 定义带错误码的统一错误类型。工具信封、任务状态与 HTTP 响应都从这里取错误码。
package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"maps"
)

// Error 是系统内统一的错误类型。attrs 在创建时从错误码属性复制，Option 在此基础上覆盖。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	attrs    Attributes
}

// Option 调整单个错误的行为。
type Option func(*Error)

// WithMetadata 附加一条键值信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = map[string]string{}
		}
		e.metadata[key] = value
	}
}

func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.attrs.Retryable = retryable }
}

func WithAlert(alert bool) Option {
	return func(e *Error) { e.attrs.Alert = alert }
}

func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.attrs.Severity = sev }
}

// New 创建错误；message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, attrs: AttributesOf(code)}
	e.message = message
	if e.message == "" {
		e.message = e.attrs.Message
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf 以格式化字符串创建错误。
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 用错误码包裹底层错误。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return "[" + string(e.code) + "] " + e.message
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 使 errors.Is 按错误码比较。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 是工具信封 message 字段的内容：不带错误码前缀，cause 拼接在后。
func (e *Error) Message() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return e.message
	default:
		return e.message + ": " + MessageOf(e.cause)
	}
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Retryable() bool {
	return e != nil && e.attrs.Retryable
}

func (e *Error) ShouldAlert() bool {
	return e != nil && e.attrs.Alert
}

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.attrs.Severity
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链上的错误码。context 超时归为 TIMEOUT，其余未知错误归为 UNKNOWN_ERROR。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnknown
}

// MessageOf 返回适合展示给调用方的错误描述。
func MessageOf(err error) string {
	if e, ok := From(err); ok {
		return e.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	e, ok := From(err)
	return ok && e.Retryable()
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	return ok && e.ShouldAlert()
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
