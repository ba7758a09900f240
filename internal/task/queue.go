package task

import (
	"context"

	"golang.org/x/sync/errgroup"

	xerrors "WaxAgentKit/internal/errors"
)

// Handler 处理一条任务消息。返回错误说明任务仍是 pending（通常是存储暂时不可用），
// 队列应重新投递；工具本身失败时由 Processor 决定是否重试，Handler 返回 nil。
type Handler func(ctx context.Context, jobID string) error

// Producer 负责向队列投递任务 ID。
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer 负责从队列中消费任务。Consume 阻塞到 ctx 结束或队列出现不可恢复的错误。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// ErrQueueClosed 表示队列已经关闭。
var ErrQueueClosed = xerrors.New(xerrors.CodeQueueFailure, "queue closed")

// runWorkers 以 workers 个协程运行 loop。任一 loop 出错会取消其余协程并返回该错误；
// 全部正常退出时等待 ctx 结束。
func runWorkers(ctx context.Context, workers int, loop func(ctx context.Context) error) error {
	if workers <= 0 {
		workers = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		group.Go(func() error { return loop(groupCtx) })
	}
	if err := group.Wait(); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}
