package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "WaxAgentKit/internal/errors"
)

// DefaultRedisQueue 是未配置队列名时使用的 list key。
const DefaultRedisQueue = "waxkit:jobs"

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 基于 Redis list 的可靠队列。
//
// 消费时用 BLMOVE 把任务从 <queue> 挪到 <queue>:processing，处理完成后再 LREM。
// 进程在处理中崩溃时，任务留在 processing 列表里，下次 Consume 启动时放回主队列。
type RedisQueue struct {
	client     *redis.Client
	queue      string
	processing string
	wait       time.Duration
}

// NewRedisQueue 创建 Redis 队列实例并检查连通性。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return NewRedisQueueWithClient(client, cfg.Queue, cfg.BlockWait), nil
}

// NewRedisQueueWithClient 复用已有的 Redis 客户端。
func NewRedisQueueWithClient(client *redis.Client, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = DefaultRedisQueue
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		queue:      queue,
		processing: queue + ":processing",
		wait:       wait,
	}
}

// Publish 投递任务。
func (q *RedisQueue) Publish(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.queue, jobID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布任务失败")
	}
	return nil
}

// Recover 把 processing 列表中遗留的任务放回主队列，返回移动的数量。
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, xerrors.Wrap(xerrors.CodeQueueFailure, err, "恢复 Redis 处理中任务失败")
		}
		moved++
	}
}

// Consume 启动 workerCount 个消费者。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if _, err := q.Recover(ctx); err != nil {
		return err
	}
	return runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for ctx.Err() == nil {
			jobID, err := q.client.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", q.wait).Result()
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, redis.ErrClosed):
				return ErrQueueClosed
			case err != nil:
				return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取任务失败")
			}

			handlerErr := handler(ctx, jobID)
			if ctx.Err() != nil {
				// 留在 processing 中，由下次 Recover 处理
				return nil
			}
			if err := q.settle(ctx, jobID, handlerErr != nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// settle 从 processing 移除任务；redeliver 为真时在同一事务里放回主队列的出队端。
func (q *RedisQueue) settle(ctx context.Context, jobID string, redeliver bool) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, jobID)
		if redeliver {
			pipe.RPush(ctx, q.queue, jobID)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 确认任务失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
