package task

import (
	"context"
	"errors"
	"sync"

	"WaxAgentKit/pkg/logger"
)

var errQueueFull = errors.New("memory queue is full")

// MemoryQueue 使用带缓冲的 channel 作为队列，只适用于单进程部署与测试。
type MemoryQueue struct {
	mu       sync.RWMutex
	ch       chan string
	closed   bool
	requeues sync.WaitGroup
}

// NewMemoryQueue 创建容量为 size 的内存队列，size 非正数时为 64。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 投递任务；队列已满时阻塞到 ctx 结束。
func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len 返回尚未被消费的任务数。
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Consume 处理失败的任务会被放回队尾。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	err := runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case jobID, ok := <-q.ch:
				if !ok {
					return nil
				}
				if err := handler(ctx, jobID); err != nil && ctx.Err() == nil {
					q.requeue(ctx, jobID)
				}
			}
		}
	})
	q.requeues.Wait()
	return err
}

// requeue 不阻塞 worker：队列已满时交给后台协程等待空位，直到 ctx 结束。
// 未能放回的任务仍是 pending，由 Processor.Resume 在重启时恢复。
func (q *MemoryQueue) requeue(ctx context.Context, jobID string) {
	log := logger.Named("task_queue")
	err := q.offer(jobID)
	if err == nil {
		return
	}
	if !errors.Is(err, errQueueFull) {
		log.Warn("任务重新入队失败", "job_id", jobID, "error", err)
		return
	}
	q.requeues.Add(1)
	go func() {
		defer q.requeues.Done()
		if err := q.Publish(ctx, jobID); err != nil {
			log.Warn("任务重新入队失败", "job_id", jobID, "error", err)
		}
	}()
}

// offer 尝试立即投递，队列已满时返回 errQueueFull。
func (q *MemoryQueue) offer(jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		return nil
	default:
		return errQueueFull
	}
}

// Close 之后 Publish 返回 ErrQueueClosed，消费者取完剩余任务后退出。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
