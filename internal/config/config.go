package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"WaxAgentKit/pkg/logger"
)

// Config 描述了 WaxAgentKit 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   logger.Config   `json:"logging"`
	Wax       WaxConfig       `json:"wax"`
	Storage   StorageConfig   `json:"storage"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Alerting  AlertingConfig  `json:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址、鉴权与限流参数。
type ServerConfig struct {
	Address   string          `json:"address"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// AuthConfig 描述 API 访问令牌。Mode 为 disabled 时不做鉴权。
type AuthConfig struct {
	Mode   string        `json:"mode"`
	Tokens []TokenConfig `json:"tokens"`
}

// TokenConfig 是一个静态访问令牌。Token 与 SHA256 任选其一。
type TokenConfig struct {
	Name        string   `json:"name"`
	Token       string   `json:"token"`
	SHA256      string   `json:"sha256"`
	Permissions []string `json:"permissions"`
}

// RateLimitConfig 为每个客户端提供令牌桶限流。RPS 为 0 时关闭。
type RateLimitConfig struct {
	RPS            float64 `json:"rps"`
	Burst          int     `json:"burst"`
	IdleTTLSeconds int     `json:"idle_ttl_seconds"`
}

// WaxConfig 对应一次链上会话所需的全部信息。
type WaxConfig struct {
	Account      string          `json:"account"`
	Permission   string          `json:"permission"`
	PrivateKey   string          `json:"private_key"`
	ChainID      string          `json:"chain_id"`
	Network      string          `json:"network"`
	NodeURL      string          `json:"node_url"`
	NetworksFile string          `json:"networks_file"`
	NodePulse    NodePulseConfig `json:"nodepulse"`
	RPCRateLimit RateLimitConfig `json:"rpc_rate_limit"`
	ABICache     ABICacheConfig  `json:"abi_cache"`
}

// NodePulseConfig 控制节点发现。未设置 node_url 时启用。
type NodePulseConfig struct {
	Enabled               bool   `json:"enabled"`
	APIURL                string `json:"api_url"`
	NodeType              string `json:"node_type"`
	NodeCount             int    `json:"node_count"`
	UpdateIntervalSeconds int    `json:"update_interval_seconds"`
}

// ABICacheConfig 描述合约 ABI 缓存。Driver 支持 memory 与 redis。
type ABICacheConfig struct {
	Driver     string      `json:"driver"`
	TTLSeconds int         `json:"ttl_seconds"`
	Redis      RedisConfig `json:"redis"`
}

// StorageConfig 统一描述任务与对话历史的存储后端。
type StorageConfig struct {
	TaskStore TaskStoreConfig `json:"task_store"`
	History   HistoryConfig   `json:"history"`
}

// TaskStoreConfig 支持 memory、mysql 与 sqlite 三种驱动。
type TaskStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	Retries                int    `json:"retries"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// HistoryConfig 描述对话历史存储。memory 驱动会落盘到 data_dir。
type HistoryConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// TaskQueueConfig 描述异步任务队列。
type TaskQueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 是 Redis 连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	Prefix    string `json:"prefix"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 是 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述兼容 OpenAI 协议的推理服务。
type OpenAIConfig struct {
	APIKey         string  `json:"api_key"`
	APIKeyEnv      string  `json:"api_key_env"`
	BaseURL        string  `json:"base_url"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// Timeout 返回请求超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AgentConfig 控制对话智能体。
type AgentConfig struct {
	MemoryDepth         int `json:"memory_depth"`
	MaxSteps            int `json:"max_steps"`
	AutoIntervalSeconds int `json:"auto_interval_seconds"`
}

// AutoInterval 返回自主模式的轮询间隔。
func (c AgentConfig) AutoInterval() time.Duration {
	if c.AutoIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AutoIntervalSeconds) * time.Second
}

// KnowledgeConfig 指向静态知识库文件。
type KnowledgeConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir     string `json:"data_dir"`
	MetricsAddr string `json:"metrics_address"`
}

// Environment variables recognised by ApplyEnv.
const (
	EnvRPCURL     = "RPC_URL"
	EnvPrivateKey = "PRIVATE_KEY"
	EnvAccount    = "ACCOUNT_NAME"
	EnvChainID    = "CHAIN_ID"
	EnvNetwork    = "WAX_NETWORK"
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvLogLevel   = "WAXKIT_LOG_LEVEL"
	EnvListenAddr = "WAXKIT_ADDRESS"
)

// Load 负责解析指定路径的 JSON 配置文件，并叠加环境变量。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// FromEnv 构造一个只依赖环境变量的配置，供命令行工具使用。
func FromEnv() *Config {
	var cfg Config
	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults(".")
	return &cfg
}

// LoadDotEnv 把 .env 文件中的变量写入进程环境，已经存在的变量保持不变。
// path 为空时读取当前目录的 .env；文件不存在不算错误。
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return nil
}

// ApplyEnv 用环境变量覆盖配置项。lookup 通常为 os.LookupEnv。
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvRPCURL, &c.Wax.NodeURL)
	set(EnvPrivateKey, &c.Wax.PrivateKey)
	set(EnvAccount, &c.Wax.Account)
	set(EnvChainID, &c.Wax.ChainID)
	set(EnvNetwork, &c.Wax.Network)
	set(EnvOpenAIKey, &c.LLM.OpenAI.APIKey)
	set(EnvLogLevel, &c.Logging.Level)
	set(EnvListenAddr, &c.Server.Address)
	if v, ok := lookup("WAXKIT_WORKERS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.TaskQueue.Worker = n
		}
	}
}

// Validate 检查签名会话所需的字段，并一次性列出全部缺失的环境变量。
// CHAIN_ID 缺省时取 wax.network 对应网络的默认链 ID。
func (c *Config) Validate() error {
	return c.validate(false)
}

// ValidateEnv 与 Validate 相同，但要求显式提供 CHAIN_ID，供只读取环境变量的
// 命令行工具使用。
func (c *Config) ValidateEnv() error {
	return c.validate(true)
}

func (c *Config) validate(requireChainID bool) error {
	var missing []string
	if c.Wax.NodeURL == "" && !c.Wax.NodePulse.Enabled {
		missing = append(missing, EnvRPCURL)
	}
	if c.Wax.PrivateKey == "" {
		missing = append(missing, EnvPrivateKey)
	}
	if c.Wax.Account == "" {
		missing = append(missing, EnvAccount)
	}
	if requireChainID && c.Wax.ChainID == "" {
		missing = append(missing, EnvChainID)
	}
	if c.LLM.Provider == "openai" && c.LLM.OpenAI.APIKey == "" && c.LLM.OpenAI.APIKeyEnv == "" {
		missing = append(missing, EnvOpenAIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.Storage.TaskStore.Driver {
	case "memory", "mysql", "sqlite":
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", c.Storage.TaskStore.Driver)
	}
	switch c.TaskQueue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.TaskQueue.Driver)
	}
	switch c.Server.Auth.Mode {
	case "disabled", "token":
	default:
		return fmt.Errorf("未知的鉴权模式: %s", c.Server.Auth.Mode)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Auth.Mode == "" {
		c.Server.Auth.Mode = "disabled"
	}
	if c.Server.RateLimit.IdleTTLSeconds <= 0 {
		c.Server.RateLimit.IdleTTLSeconds = 600
	}

	if c.Wax.Network == "" {
		c.Wax.Network = "mainnet"
	}
	if c.Wax.Permission == "" {
		c.Wax.Permission = "active"
	}
	if c.Wax.NetworksFile != "" && !filepath.IsAbs(c.Wax.NetworksFile) {
		c.Wax.NetworksFile = filepath.Join(baseDir, c.Wax.NetworksFile)
	}
	if c.Wax.NodePulse.APIURL == "" {
		c.Wax.NodePulse.APIURL = "https://nodes.nodepulse.co/nodes"
	}
	if c.Wax.NodePulse.NodeType == "" {
		c.Wax.NodePulse.NodeType = "hyperion"
	}
	if c.Wax.NodePulse.NodeCount <= 0 {
		c.Wax.NodePulse.NodeCount = 5
	}
	if c.Wax.NodePulse.UpdateIntervalSeconds <= 0 {
		c.Wax.NodePulse.UpdateIntervalSeconds = 60
	}
	if c.Wax.ABICache.Driver == "" {
		c.Wax.ABICache.Driver = "memory"
	}
	if c.Wax.ABICache.TTLSeconds <= 0 {
		c.Wax.ABICache.TTLSeconds = 300
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}
	if c.Storage.TaskStore.Retries <= 0 {
		c.Storage.TaskStore.Retries = 3
	}
	if c.Storage.History.Driver == "" {
		c.Storage.History.Driver = "memory"
	}
	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 2
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKey == "" && c.LLM.OpenAI.APIKeyEnv != "" {
		c.LLM.OpenAI.APIKey = strings.TrimSpace(os.Getenv(c.LLM.OpenAI.APIKeyEnv))
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Agent.MemoryDepth <= 0 {
		c.Agent.MemoryDepth = 5
	}
	if c.Agent.MaxSteps <= 0 {
		c.Agent.MaxSteps = 8
	}
	if c.Knowledge.Source != "" && !filepath.IsAbs(c.Knowledge.Source) {
		c.Knowledge.Source = filepath.Join(baseDir, c.Knowledge.Source)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
