package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/bootstrap"
	"WaxAgentKit/internal/config"
	"WaxAgentKit/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "waxchat",
		Usage: "与 WAX 链上智能体对话",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "JSON 配置文件路径，留空时只读取环境变量（此时 RPC_URL、PRIVATE_KEY、ACCOUNT_NAME、CHAIN_ID、OPENAI_API_KEY 均为必填）；配置文件未给出 chain_id 时按 wax.network 取默认链 ID",
				EnvVars: []string{"WAXKIT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "启动前读取的 dotenv 文件，不存在时忽略",
			},
		},
		Action: func(c *cli.Context) error {
			mode, err := chooseMode(os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "mode", mode)
			if mode == modeAuto {
				return runAuto(c, 0)
			}
			return runChat(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "chat",
				Usage:  "交互式对话，输入 exit 退出",
				Action: runChat,
			},
			{
				Name:  "auto",
				Usage: "自主模式，按固定间隔让智能体自行执行链上操作",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "两轮之间的等待时间",
					},
				},
				Action: func(c *cli.Context) error {
					return runAuto(c, c.Duration("interval"))
				},
			},
			{
				Name:   "tools",
				Usage:  "列出全部可用工具",
				Action: listTools,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session 持有一次运行所需的智能体及其资源。
type session struct {
	cfg     *config.Config
	agent   *agent.Agent
	closers bootstrap.Closers
}

func (s *session) Close() error { return s.closers.Close() }

func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv(), nil
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	validate := cfg.ValidateEnv
	if c.String("config") != "" {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}

	fmt.Fprintln(c.App.Writer, "Starting Agent...")
	s := &session{cfg: cfg}
	registry, err := bootstrap.Tools(c.Context, cfg, &s.closers)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.agent, err = bootstrap.Agent(c.Context, cfg, registry, &s.closers)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func runChat(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	return chatLoop(c.Context, s.agent, os.Stdin, c.App.Writer)
}

func runAuto(c *cli.Context, interval time.Duration) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if interval <= 0 {
		interval = s.cfg.Agent.AutoInterval()
	}
	out := c.App.Writer
	fmt.Fprintln(out, "Starting autonomous mode...")
	return s.agent.Autonomous(c.Context, interval, agent.AutonomousPrompt, func(turn *agent.TurnResult, err error) {
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
			return
		}
		printTurn(out, turn)
	})
}

func listTools(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	var closers bootstrap.Closers
	defer closers.Close()
	registry, err := bootstrap.Tools(c.Context, cfg, &closers)
	if err != nil {
		return err
	}
	renderTools(c.App.Writer, registry.Definitions())
	return nil
}
