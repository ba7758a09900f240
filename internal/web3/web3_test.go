package web3

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"WaxAgentKit/internal/ratelimit"
)

type countingClient struct {
	abiCalls   int
	tableCalls int
}

func (c *countingClient) Actor() string { return "alice.wam" }
func (c *countingClient) GetCurrencyBalance(context.Context, string, string, string) ([]string, error) {
	return []string{"1.00000000 WAX"}, nil
}
func (c *countingClient) GetAccount(context.Context, string) (*Account, error) { return &Account{}, nil }
func (c *countingClient) GetABI(_ context.Context, contract string) (*ABI, error) {
	c.abiCalls++
	return &ABI{Account: contract, Actions: []ABIAction{{Name: "transfer", Type: "transfer"}}}, nil
}
func (c *countingClient) GetTableRows(context.Context, TableQuery) (*TableRows, error) {
	c.tableCalls++
	return &TableRows{}, nil
}
func (c *countingClient) PushActions(context.Context, ...Action) (*TxResult, error) {
	return &TxResult{ID: "tx"}, nil
}

func TestCachedClientServesRepeatedABIFromCache(t *testing.T) {
	inner := &countingClient{}
	client := WithABICache(inner, NewMemoryABICache(), time.Minute)

	for i := 0; i < 3; i++ {
		abi, err := client.GetABI(context.Background(), "eosio.token")
		if err != nil {
			t.Fatalf("get abi: %v", err)
		}
		if _, ok := abi.Action("transfer"); !ok {
			t.Fatalf("transfer action missing")
		}
	}
	if inner.abiCalls != 1 {
		t.Fatalf("expected a single upstream call, got %d", inner.abiCalls)
	}
	if client.Actor() != "alice.wam" {
		t.Fatalf("embedded client methods should pass through")
	}
}

func TestMemoryABICacheExpires(t *testing.T) {
	cache := NewMemoryABICache()
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	if err := cache.PutABI(context.Background(), "swap.alcor", &ABI{}, time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := cache.GetABI(context.Background(), "swap.alcor"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := cache.GetABI(context.Background(), "swap.alcor"); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestRateLimitedClientRejectsWhenContextEnds(t *testing.T) {
	inner := &countingClient{}
	client := WithRateLimit(inner, ratelimit.New(0.001, 1, time.Minute), "https://wax.greymass.com")

	if _, err := client.GetTableRows(context.Background(), TableQuery{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := client.GetTableRows(ctx, TableQuery{}); err == nil {
		t.Fatalf("expected rate limit error")
	}
	if inner.tableCalls != 1 {
		t.Fatalf("throttled call reached the node")
	}
}

func TestLoadNetworkDefinitionsMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := "default: testnet\nnetworks:\n  testnet:\n    chain_id: f16b1833c747c43682f4386fca9cbb327929334a762755ebec17f6f23c9b8a12\n    node_url: https://testnet.wax.pink.gg\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	defs, err := LoadNetworkDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Default != "testnet" || defs.Networks["testnet"].NodeURL != "https://testnet.wax.pink.gg" {
		t.Fatalf("file entry not applied: %+v", defs)
	}
	if _, ok := defs.Networks["mainnet"]; !ok {
		t.Fatalf("built-in mainnet should remain")
	}
	if got := defs.Names(); len(got) != 2 || got[0] != "mainnet" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestLoadNetworkDefinitionsRejectsUnknownDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	if err := os.WriteFile(path, []byte("default: devnet\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadNetworkDefinitions(path); err == nil {
		t.Fatalf("expected error for unknown default")
	}
}
