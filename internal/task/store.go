package task

import (
	"context"

	xerrors "WaxAgentKit/internal/errors"
)

// Store 抽象了任务状态的持久化接口。
//
// MarkFailed 在 terminal 为 false 时把任务放回 pending，等待再次领取；
// terminal 为 true 时任务停在 failed。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result *ExecutionResult, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (JobStats, error)
	Close() error
}
