package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/observability/metrics"
	"WaxAgentKit/pkg/logger"
)

// Tool is the interface every agent tool implements. Call never fails: all
// outcomes, including malformed input, come back as a JSON envelope.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	// Mutating reports whether the tool signs and pushes a transaction.
	Mutating() bool
	Call(ctx context.Context, input string) string
}

// handler is the typed body of a tool. A returned error becomes an error
// envelope; a nil Response with nil error is treated as an empty success.
type handler func(ctx context.Context, kit *Kit, in Input) (*Response, error)

// toolDef describes one tool and implements Tool.
type toolDef struct {
	kit         *Kit
	name        string
	description string
	params      map[string]any
	mutating    bool
	// errCode overrides the envelope code for every failure of this tool.
	errCode xerrors.Code
	// errMessage replaces an empty failure message.
	errMessage string
	run        handler
}

func (s *toolDef) Name() string               { return s.name }
func (s *toolDef) Description() string        { return s.description }
func (s *toolDef) Parameters() map[string]any { return s.params }
func (s *toolDef) Mutating() bool             { return s.mutating }

// Call implements Tool.
func (s *toolDef) Call(ctx context.Context, input string) string {
	start := time.Now()
	log := logger.Named("tools").With(slog.String("tool", s.name))

	resp := s.execute(ctx, input)
	out := resp.String()

	metrics.ObserveToolCall(s.name, resp.Status, time.Since(start))
	if resp.Status == StatusError {
		log.Warn("tool failed", "code", string(resp.Code), "message", resp.Message)
	} else {
		log.Debug("tool succeeded", "duration", time.Since(start))
	}
	if s.mutating {
		logger.Audit().Info("tool executed",
			slog.String("tool", s.name),
			slog.String("actor", s.kit.Account),
			slog.String("status", resp.Status),
			slog.String("message", resp.Message),
		)
	}
	return out
}

func (s *toolDef) execute(ctx context.Context, input string) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Named("tools").Error("tool panicked", "tool", s.name, "panic", r)
			resp = s.failure(xerrors.Newf(xerrors.CodeUnknown, "%v", r))
		}
	}()

	in, err := ParseInput(input)
	if err != nil {
		return s.failure(err)
	}
	resp, err = s.run(ctx, s.kit, in)
	if err != nil {
		return s.failure(err)
	}
	if resp == nil {
		resp = Success("")
	}
	return resp
}

func (s *toolDef) failure(err error) *Response {
	resp := FailureFrom(err)
	if s.errCode != "" {
		resp.Code = s.errCode
	}
	if resp.Message == "" {
		resp.Message = s.errMessage
	}
	return resp
}

// ErrToolNotFound is returned by Registry.Execute for unknown names.
var ErrToolNotFound = errors.New("tool not found")
