package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/web3"
)

// DefaultPrefix 是 ABI 缓存 key 的默认前缀。
const DefaultPrefix = "waxkit:abi:"

// Config 描述 Redis 连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// kv 是缓存用到的 Redis 命令子集，*goredis.Client 满足该接口。
type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Close() error
}

// ABICache 把合约 ABI 以 JSON 形式存入 Redis，过期由 SET EX 控制。
type ABICache struct {
	client kv
	prefix string
}

// NewABICache 连接 Redis 并返回缓存实例。
func NewABICache(ctx context.Context, cfg Config) (*ABICache, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return newABICache(client, cfg.Prefix), nil
}

func newABICache(client kv, prefix string) *ABICache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ABICache{client: client, prefix: prefix}
}

// GetABI 实现 web3.ABICache。key 不存在时返回 ok=false。
func (c *ABICache) GetABI(ctx context.Context, contract string) (*web3.ABI, bool, error) {
	raw, err := c.client.Get(ctx, c.key(contract)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 ABI 缓存失败")
	}
	var abi web3.ABI
	if err := json.Unmarshal(raw, &abi); err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 ABI 缓存失败")
	}
	return &abi, true, nil
}

// PutABI 实现 web3.ABICache。ttl 不大于 0 时不过期。
func (c *ABICache) PutABI(ctx context.Context, contract string, abi *web3.ABI, ttl time.Duration) error {
	if abi == nil {
		return nil
	}
	data, err := json.Marshal(abi)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化 ABI 失败")
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key(contract), data, ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 ABI 缓存失败")
	}
	return nil
}

// Close 关闭底层连接。
func (c *ABICache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *ABICache) key(contract string) string {
	return c.prefix + strings.ToLower(strings.TrimSpace(contract))
}

var _ web3.ABICache = (*ABICache)(nil)
