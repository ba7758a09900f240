package task

import (
	"context"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "WaxAgentKit/internal/errors"
)

// DefaultRabbitMQQueue 是未配置队列名时声明的队列。
const DefaultRabbitMQQueue = "waxkit.jobs"

// jobMessageType 标记消息体是一个任务 ID。
const jobMessageType = "waxkit.job"

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用 RabbitMQ 实现任务队列。发布端开启 publisher confirm，
// 只有 broker 确认后 Publish 才返回成功。
type RabbitMQQueue struct {
	conn    *amqp.Connection
	pub     *amqp.Channel
	sub     *amqp.Channel
	queue   string
	pubLock sync.Mutex
}

// NewRabbitMQQueue 连接 broker 并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "RabbitMQ URL 不能为空")
	}
	q := &RabbitMQQueue{queue: cfg.Queue}
	if q.queue == "" {
		q.queue = DefaultRabbitMQQueue
	}

	var err error
	if q.conn, err = amqp.Dial(cfg.URL); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	if err := q.setup(cfg); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) setup(cfg RabbitMQConfig) error {
	var err error
	if q.pub, err = q.conn.Channel(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ 发布 channel 失败")
	}
	if err := q.pub.Confirm(false); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "开启 RabbitMQ 发布确认失败")
	}
	if q.sub, err = q.conn.Channel(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ 消费 channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := q.sub.Qos(cfg.Prefetch, 0, false); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ QOS 失败")
		}
	}
	if _, err := q.pub.QueueDeclare(q.queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败")
	}
	return nil
}

// Publish 投递任务并等待 broker 确认。
func (q *RabbitMQQueue) Publish(ctx context.Context, jobID string) error {
	if q == nil || q.pub == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	q.pubLock.Lock()
	confirm, err := q.pub.PublishWithDeferredConfirmWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Type:         jobMessageType,
		Body:         []byte(jobID),
	})
	q.pubLock.Unlock()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布任务失败")
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "等待 RabbitMQ 确认失败")
	}
	if !acked {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 拒绝了任务消息",
			xerrors.WithRetryable(true),
			xerrors.WithMetadata("job_id", jobID))
	}
	return nil
}

// Consume 手动确认模式消费；handler 出错时 Nack 并重新入队。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.sub == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	deliveries, err := q.sub.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}
	return runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-deliveries:
				if !ok {
					return nil
				}
				if msg.Type != "" && msg.Type != jobMessageType {
					_ = msg.Reject(false)
					continue
				}
				if err := handler(ctx, string(msg.Body)); err != nil {
					_ = msg.Nack(false, true)
					continue
				}
				_ = msg.Ack(false)
			}
		}
	})
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	for _, ch := range []*amqp.Channel{q.sub, q.pub} {
		if ch != nil {
			_ = ch.Close()
		}
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*RabbitMQQueue)(nil)
