// Package bootstrap 根据配置装配守护进程与命令行工具共用的组件。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/config"
	"WaxAgentKit/internal/knowledge"
	"WaxAgentKit/internal/llm"
	"WaxAgentKit/internal/llm/openai"
	"WaxAgentKit/internal/observability/alerting"
	"WaxAgentKit/internal/storage/mysql"
	"WaxAgentKit/internal/storage/redis"
	"WaxAgentKit/internal/task"
	"WaxAgentKit/internal/tools"
	"WaxAgentKit/internal/web3"
	"WaxAgentKit/internal/web3/provider"
	"WaxAgentKit/pkg/logger"
)

// Closers 按注册的逆序释放资源。
type Closers []func() error

// Add 注册一个释放函数，nil 会被忽略。
func (c *Closers) Add(fn func() error) {
	if fn != nil {
		*c = append(*c, fn)
	}
}

// Close 依次调用全部释放函数并合并错误。
func (c *Closers) Close() error {
	var errs []error
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			errs = append(errs, err)
		}
	}
	*c = nil
	return errors.Join(errs...)
}

// ABICache 根据 wax.abi_cache.driver 创建 ABI 缓存。
func ABICache(ctx context.Context, cfg *config.Config, closers *Closers) (web3.ABICache, error) {
	switch cfg.Wax.ABICache.Driver {
	case "", "memory":
		return web3.NewMemoryABICache(), nil
	case "redis":
		cache, err := redis.NewABICache(ctx, redis.Config{
			Address:  cfg.Wax.ABICache.Redis.Address,
			Password: cfg.Wax.ABICache.Redis.Password,
			DB:       cfg.Wax.ABICache.Redis.DB,
			Prefix:   cfg.Wax.ABICache.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		closers.Add(cache.Close)
		return cache, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的 ABI 缓存驱动: %s", cfg.Wax.ABICache.Driver)
	}
}

// Tools 构建默认网络上的 WAX 工具集。
func Tools(ctx context.Context, cfg *config.Config, closers *Closers) (*tools.Registry, error) {
	cache, err := ABICache(ctx, cfg, closers)
	if err != nil {
		return nil, err
	}
	networks, err := provider.NewRegistry(cfg.Wax, cache)
	if err != nil {
		return nil, err
	}
	connector, err := networks.DefaultConnector()
	if err != nil {
		return nil, err
	}
	sess := connector.Session()
	logger.Named("bootstrap").Info("WAX 会话已就绪",
		"account", sess.Actor,
		"network", string(sess.Network),
		"networks", networks.Networks(),
	)
	return tools.NewWaxRegistry(tools.NewKit(sess.Actor, sess.Network, connector)), nil
}

// LLMClient 创建大模型客户端。
func LLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" && cfg.LLM.OpenAI.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.LLM.OpenAI.BaseURL,
			Model:       cfg.LLM.OpenAI.Model,
			Temperature: cfg.LLM.OpenAI.Temperature,
			Timeout:     cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

// History 创建对话历史仓库。
func History(ctx context.Context, cfg *config.Config, closers *Closers) (mysql.HistoryRepository, error) {
	var (
		repo mysql.HistoryRepository
		err  error
	)
	switch cfg.Storage.History.Driver {
	case "", "memory":
		repo, err = mysql.NewMemoryHistoryRepository(cfg.Runtime.DataDir)
	case "mysql":
		repo, err = mysql.NewSQLHistoryRepository(ctx, mysql.Config{DSN: cfg.Storage.History.DSN})
	default:
		return nil, fmt.Errorf("未知的历史存储驱动: %s", cfg.Storage.History.Driver)
	}
	if err != nil {
		return nil, err
	}
	closers.Add(repo.Close)
	return repo, nil
}

// Knowledge 返回知识库；未配置文件时使用内置条目。
func Knowledge(cfg *config.Config) (knowledge.Provider, error) {
	if cfg.Knowledge.Source == "" {
		return knowledge.NewDefaultProvider(cfg.Knowledge.MaxResults), nil
	}
	static, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
	if err != nil {
		return nil, err
	}
	return static, nil
}

// Agent 装配对话智能体。
func Agent(ctx context.Context, cfg *config.Config, toolset agent.Toolset, closers *Closers) (*agent.Agent, error) {
	client, err := LLMClient(cfg)
	if err != nil {
		return nil, err
	}
	history, err := History(ctx, cfg, closers)
	if err != nil {
		return nil, err
	}
	notes, err := Knowledge(cfg)
	if err != nil {
		return nil, err
	}
	return agent.New(client, toolset, history,
		agent.WithMemoryDepth(cfg.Agent.MemoryDepth),
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithKnowledgeProvider(notes),
		agent.WithLLMTimeout(cfg.LLM.OpenAI.Timeout()),
	), nil
}

// TaskStore 根据 storage.task_store.driver 创建任务存储。
func TaskStore(ctx context.Context, cfg *config.Config, closers *Closers) (task.Store, error) {
	storeCfg := cfg.Storage.TaskStore
	var (
		store task.Store
		err   error
	)
	switch storeCfg.Driver {
	case "", "memory":
		store = task.NewMemoryStore()
	case "mysql":
		store, err = task.NewMySQLStore(ctx, storeCfg.DSN, task.PoolOptions{
			MaxOpenConns:    storeCfg.MaxOpenConns,
			MaxIdleConns:    storeCfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(storeCfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(storeCfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
	case "sqlite":
		path := storeCfg.DSN
		if path == "" {
			if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
				return nil, err
			}
			path = filepath.Join(cfg.Runtime.DataDir, "jobs.db")
		}
		store, err = task.NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", storeCfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	closers.Add(store.Close)
	return store, nil
}

// TaskQueue 根据 task_queue.driver 创建任务队列。
func TaskQueue(ctx context.Context, cfg *config.Config, closers *Closers) (task.Queue, error) {
	queueCfg := cfg.TaskQueue
	var (
		queue task.Queue
		err   error
	)
	switch queueCfg.Driver {
	case "", "memory":
		queue = task.NewMemoryQueue(1024)
	case "redis":
		queue, err = task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   queueCfg.Redis.Address,
			Password:  queueCfg.Redis.Password,
			DB:        queueCfg.Redis.DB,
			Queue:     queueCfg.Redis.Queue,
			BlockWait: time.Duration(queueCfg.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		queue, err = task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        queueCfg.RabbitMQ.URL,
			Queue:      queueCfg.RabbitMQ.Queue,
			Prefetch:   queueCfg.RabbitMQ.Prefetch,
			Durable:    queueCfg.RabbitMQ.Durable,
			AutoDelete: queueCfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", queueCfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	closers.Add(queue.Close)
	return queue, nil
}

// Alerts 组合日志告警与可选的 webhook 告警。
func Alerts(cfg *config.Config) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alert")}}
	if url := strings.TrimSpace(cfg.Alerting.WebhookURL); url != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(url))
	}
	return alerting.NewFanout(notifiers...)
}
