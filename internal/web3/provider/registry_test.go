package provider

import (
	"context"
	"testing"

	"WaxAgentKit/internal/config"
	"WaxAgentKit/internal/session"
)

const testKey = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3"

func TestNewRegistryBuildsConnectorPerNetwork(t *testing.T) {
	reg, err := NewRegistry(config.WaxConfig{
		Account:    "alice.wam",
		PrivateKey: testKey,
		Network:    "testnet",
		NodeURL:    "https://testnet.example",
	}, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := reg.Networks(); len(got) != 2 || got[0] != "mainnet" || got[1] != "testnet" {
		t.Fatalf("unexpected networks %v", got)
	}
	if reg.DefaultNetwork() != "testnet" {
		t.Fatalf("unexpected default %s", reg.DefaultNetwork())
	}

	def, err := reg.DefaultConnector()
	if err != nil {
		t.Fatalf("default connector: %v", err)
	}
	sess := def.Session()
	if sess.NodeURL != "https://testnet.example" || sess.ChainID != session.TestnetChainID || sess.Permission != "active" {
		t.Fatalf("unexpected session %+v", sess)
	}

	mainnet, ok := reg.Connector("MAINNET")
	if !ok {
		t.Fatalf("mainnet connector missing")
	}
	if mainnet.Session().NodeURL != "" || mainnet.Session().ChainID != session.MainnetChainID {
		t.Fatalf("overrides leaked into mainnet: %+v", mainnet.Session())
	}
}

func TestNewRegistryRejectsUnknownNetwork(t *testing.T) {
	if _, err := NewRegistry(config.WaxConfig{Account: "alice.wam", PrivateKey: testKey, Network: "devnet"}, nil); err == nil {
		t.Fatalf("expected error for unknown network")
	}
}

func TestStaticNodesRotate(t *testing.T) {
	nodes := &staticNodes{nodes: []string{"a", "b"}}
	first, _ := nodes.Node(context.Background())
	second, _ := nodes.Node(context.Background())
	third, _ := nodes.Node(context.Background())
	if first != "a" || second != "b" || third != "a" {
		t.Fatalf("unexpected rotation %s %s %s", first, second, third)
	}
	if _, err := (&staticNodes{}).Node(context.Background()); err == nil {
		t.Fatalf("expected error for empty list")
	}
}
