package web3

import (
	"context"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/ratelimit"
)

// LimitedClient throttles every RPC against a per-node token bucket.
type LimitedClient struct {
	next    Client
	limiter *ratelimit.MapLimiter
	key     string
}

// WithRateLimit wraps client; key is usually the node URL so that a rotated
// node starts with a fresh bucket.
func WithRateLimit(client Client, limiter *ratelimit.MapLimiter, key string) Client {
	if limiter == nil {
		return client
	}
	return &LimitedClient{next: client, limiter: limiter, key: key}
}

func (c *LimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx, c.key); err != nil {
		return xerrors.Wrap(xerrors.CodeRateLimited, err, "rpc rate limit")
	}
	return nil
}

// Actor implements Client.
func (c *LimitedClient) Actor() string { return c.next.Actor() }

// GetCurrencyBalance implements Client.
func (c *LimitedClient) GetCurrencyBalance(ctx context.Context, code, account, symbol string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GetCurrencyBalance(ctx, code, account, symbol)
}

// GetAccount implements Client.
func (c *LimitedClient) GetAccount(ctx context.Context, name string) (*Account, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GetAccount(ctx, name)
}

// GetABI implements Client.
func (c *LimitedClient) GetABI(ctx context.Context, contract string) (*ABI, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GetABI(ctx, contract)
}

// GetTableRows implements Client.
func (c *LimitedClient) GetTableRows(ctx context.Context, query TableQuery) (*TableRows, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GetTableRows(ctx, query)
}

// PushActions implements Client.
func (c *LimitedClient) PushActions(ctx context.Context, actions ...Action) (*TxResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.PushActions(ctx, actions...)
}
