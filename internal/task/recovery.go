package task

import "context"

// RecoveryHandler 定义了在工具调用不可重试地失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 根据失败的信封尝试补偿。返回的 ExecutionResult 会作为成功结果写入任务；
	// 返回 nil 则按失败流程处理。
	Recover(ctx context.Context, job *Job, failure ExecutionResult) (*ExecutionResult, error)
}

// RecoveryFunc 将普通函数适配为 RecoveryHandler。
type RecoveryFunc func(ctx context.Context, job *Job, failure ExecutionResult) (*ExecutionResult, error)

// Recover 实现 RecoveryHandler。
func (f RecoveryFunc) Recover(ctx context.Context, job *Job, failure ExecutionResult) (*ExecutionResult, error) {
	return f(ctx, job, failure)
}
