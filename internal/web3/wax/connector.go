package wax

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/eoscanada/eos-go"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/ratelimit"
	"WaxAgentKit/internal/session"
	"WaxAgentKit/internal/web3"
	"WaxAgentKit/pkg/logger"
)

// NodeSource yields the RPC endpoint for a new session.
type NodeSource interface {
	Node(ctx context.Context) (string, error)
}

// Connector opens signing sessions against a WAX node. It satisfies
// web3.Opener.
type Connector struct {
	cfg        session.Config
	nodes      NodeSource
	limiter    *ratelimit.MapLimiter
	cache      web3.ABICache
	cacheTTL   time.Duration
	httpClient *http.Client
}

var _ web3.Opener = (*Connector)(nil)

// Option 自定义 Connector。
type Option func(*Connector)

// WithNodeSource 使用节点发现代替固定的 NodeURL。
func WithNodeSource(src NodeSource) Option {
	return func(c *Connector) { c.nodes = src }
}

// WithRPCRateLimit 对每个节点的请求限流。
func WithRPCRateLimit(limiter *ratelimit.MapLimiter) Option {
	return func(c *Connector) { c.limiter = limiter }
}

// WithABICache 缓存合约 ABI。
func WithABICache(cache web3.ABICache, ttl time.Duration) Option {
	return func(c *Connector) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithHTTPClient 替换底层 HTTP 客户端，主要用于测试。
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.httpClient = client }
}

// NewConnector validates the session configuration and returns a connector.
func NewConnector(cfg session.Config, opts ...Option) (*Connector, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Connector{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if strings.TrimSpace(cfg.NodeURL) == "" && c.nodes == nil {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "either a node url or a node source is required")
	}
	return c, nil
}

// Session returns the validated session configuration.
func (c *Connector) Session() session.Config { return c.cfg }

// Open implements web3.Opener. Each call builds a fresh API handle and key
// bag, so rotated nodes take effect on the next tool call.
func (c *Connector) Open(ctx context.Context) (web3.Client, error) {
	node := strings.TrimSpace(c.cfg.NodeURL)
	if node == "" {
		discovered, err := c.nodes.Node(ctx)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "select node")
		}
		node = discovered
	}

	api := eos.New(strings.TrimRight(node, "/"))
	if c.httpClient != nil {
		api.HttpClient = c.httpClient
	}
	wif, err := session.SigningKey(c.cfg.PrivateKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, "import private key")
	}
	keyBag := eos.NewKeyBag()
	if err := keyBag.Add(wif); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, "import private key")
	}
	api.SetSigner(keyBag)

	inner, err := newClient(api, c.cfg, c.cache, c.cacheTTL)
	if err != nil {
		return nil, err
	}
	logger.Named("wax").Debug("session opened", "node", node, "actor", c.cfg.Actor, "network", string(c.cfg.Network))

	var client web3.Client = inner
	if c.cache != nil {
		client = web3.WithABICache(client, c.cache, c.cacheTTL)
	}
	return web3.WithRateLimit(client, c.limiter, node), nil
}
