package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"WaxAgentKit/internal/api"
	"WaxAgentKit/internal/auth"
	"WaxAgentKit/internal/bootstrap"
	"WaxAgentKit/internal/config"
	"WaxAgentKit/internal/observability/metrics"
	"WaxAgentKit/internal/ratelimit"
	"WaxAgentKit/internal/task"
	"WaxAgentKit/pkg/logger"
)

// main 是 WaxAgentKit 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("waxagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		return err
	}

	lg := logger.Named("waxagentd")

	var closers bootstrap.Closers
	defer func() {
		if err := closers.Close(); err != nil {
			lg.Warn("释放资源失败", "error", err)
		}
	}()

	registry, err := bootstrap.Tools(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	assistant, err := bootstrap.Agent(ctx, cfg, registry, &closers)
	if err != nil {
		return err
	}
	store, err := bootstrap.TaskStore(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	queue, err := bootstrap.TaskQueue(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(authConfig(cfg.Server.Auth))
	if err != nil {
		return err
	}
	limiter := ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst,
		time.Duration(cfg.Server.RateLimit.IdleTTLSeconds)*time.Second)

	jobs := task.NewService(registry, store, queue, cfg.Storage.TaskStore.Retries)
	processor := task.NewProcessor(registry, store, queue, queue,
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithProcessorLogger(logger.Named("task")),
		task.WithAlertDispatcher(bootstrap.Alerts(cfg)),
	)

	// 重启后把遗留的 pending 任务重新投递
	if resumed, err := processor.Resume(ctx); err != nil {
		lg.Warn("恢复待处理任务失败", "error", err)
	} else if resumed > 0 {
		lg.Info("已恢复待处理任务", "count", resumed)
	}

	server := api.NewServer(cfg.Server.Address, api.Dependencies{
		Tools:     registry,
		Jobs:      jobs,
		Assistant: assistant,
		Auth:      authService,
		Limiter:   limiter,
	})

	lg.Info("waxagentd 启动",
		"address", cfg.Server.Address,
		"tools", registry.Len(),
		"task_store", cfg.Storage.TaskStore.Driver,
		"task_queue", cfg.TaskQueue.Driver,
		"auth", string(authService.Mode()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := processor.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("任务处理器异常退出: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := server.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Runtime.MetricsAddr != "" {
		group.Go(func() error {
			return metrics.StartServer(groupCtx, cfg.Runtime.MetricsAddr)
		})
	}
	return group.Wait()
}

// loadConfig 优先读取 WAXKIT_CONFIG 指向的文件，其次 configs/waxkit.json，都不存在时只用环境变量。
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(os.Getenv("WAXKIT_ENV_FILE")); err != nil {
		return nil, err
	}
	path := os.Getenv("WAXKIT_CONFIG")
	if path == "" {
		path = filepath.Join("configs", "waxkit.json")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.FromEnv(), nil
		}
	}
	return config.Load(path)
}

func authConfig(cfg config.AuthConfig) auth.Config {
	out := auth.Config{Mode: auth.Mode(cfg.Mode)}
	for _, token := range cfg.Tokens {
		out.Tokens = append(out.Tokens, auth.Token{
			Name:        token.Name,
			Token:       token.Token,
			SHA256:      token.SHA256,
			Permissions: token.Permissions,
		})
	}
	return out
}
