package web3

import (
	"context"
	"sync"
	"time"

	"WaxAgentKit/pkg/logger"
)

// ABICache stores contract ABIs keyed by account name.
type ABICache interface {
	GetABI(ctx context.Context, contract string) (*ABI, bool, error)
	PutABI(ctx context.Context, contract string, abi *ABI, ttl time.Duration) error
}

// MemoryABICache is a process-local ABICache.
type MemoryABICache struct {
	mu      sync.RWMutex
	entries map[string]cachedABI
	now     func() time.Time
}

type cachedABI struct {
	abi       *ABI
	expiresAt time.Time
}

// NewMemoryABICache creates an empty cache.
func NewMemoryABICache() *MemoryABICache {
	return &MemoryABICache{entries: make(map[string]cachedABI), now: time.Now}
}

// GetABI implements ABICache.
func (c *MemoryABICache) GetABI(_ context.Context, contract string) (*ABI, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[contract]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, contract)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.abi, true, nil
}

// PutABI implements ABICache. A non-positive ttl keeps the entry forever.
func (c *MemoryABICache) PutABI(_ context.Context, contract string, abi *ABI, ttl time.Duration) error {
	entry := cachedABI{abi: abi}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[contract] = entry
	c.mu.Unlock()
	return nil
}

// CachedClient serves GetABI from an ABICache and delegates the rest.
type CachedClient struct {
	Client
	cache ABICache
	ttl   time.Duration
}

// WithABICache wraps client so ABI lookups hit cache first. Cache failures
// are logged and fall through to the node.
func WithABICache(client Client, cache ABICache, ttl time.Duration) *CachedClient {
	return &CachedClient{Client: client, cache: cache, ttl: ttl}
}

// GetABI implements Client.
func (c *CachedClient) GetABI(ctx context.Context, contract string) (*ABI, error) {
	if c.cache != nil {
		abi, ok, err := c.cache.GetABI(ctx, contract)
		if err != nil {
			logger.Named("web3").Warn("abi cache lookup failed", "contract", contract, "error", err)
		} else if ok {
			return abi, nil
		}
	}

	abi, err := c.Client.GetABI(ctx, contract)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.PutABI(ctx, contract, abi, c.ttl); err != nil {
			logger.Named("web3").Warn("abi cache store failed", "contract", contract, "error", err)
		}
	}
	return abi, nil
}
