package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waxkit.json")
	content := `{"wax":{"account":"alice.wam","private_key":"key","node_url":"https://wax.greymass.com"},"knowledge":{"source":"knowledge.json"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Wax.Permission != "active" || cfg.Wax.Network != "mainnet" {
		t.Fatalf("unexpected session defaults: %+v", cfg.Wax)
	}
	if cfg.Wax.NodePulse.NodeCount != 5 || cfg.Wax.NodePulse.UpdateIntervalSeconds != 60 {
		t.Fatalf("unexpected nodepulse defaults: %+v", cfg.Wax.NodePulse)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
	if cfg.Knowledge.Source != filepath.Join(dir, "knowledge.json") {
		t.Fatalf("knowledge path not resolved: %q", cfg.Knowledge.Source)
	}
	if cfg.Agent.AutoInterval().Seconds() != 10 {
		t.Fatalf("unexpected auto interval %v", cfg.Agent.AutoInterval())
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	env := map[string]string{
		EnvRPCURL:     "https://testnet.waxsweden.org",
		EnvPrivateKey: "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3",
		EnvAccount:    "bob.wam",
		EnvNetwork:    "testnet",
	}
	cfg := &Config{Wax: WaxConfig{Account: "alice.wam"}}
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if cfg.Wax.Account != "bob.wam" || cfg.Wax.NodeURL != env[EnvRPCURL] || cfg.Wax.Network != "testnet" {
		t.Fatalf("env not applied: %+v", cfg.Wax)
	}
}

func TestValidateListsAllMissingVariables(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults(".")

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, name := range []string{EnvRPCURL, EnvPrivateKey, EnvAccount, EnvOpenAIKey} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not mention %s", err, name)
		}
	}
}

func TestValidateEnvRequiresChainID(t *testing.T) {
	cfg := &Config{
		Wax: WaxConfig{Account: "alice.wam", PrivateKey: "k", NodeURL: "http://node"},
		LLM: LLMConfig{OpenAI: OpenAIConfig{APIKey: "sk"}},
	}
	cfg.applyDefaults(".")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config files may fall back to the network chain id: %v", err)
	}
	err := cfg.ValidateEnv()
	if err == nil || err.Error() != "missing required environment variables: "+EnvChainID {
		t.Fatalf("unexpected error: %v", err)
	}

	empty := &Config{}
	empty.applyDefaults(".")
	err = empty.ValidateEnv()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, name := range []string{EnvRPCURL, EnvPrivateKey, EnvAccount, EnvChainID, EnvOpenAIKey} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not mention %s", err, name)
		}
	}

	cfg.Wax.ChainID = "f16b1833c747c43682f4386fca9cbb327929334a762755ebec17f6f23c9b8a12"
	if err := cfg.ValidateEnv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := &Config{
		Wax: WaxConfig{Account: "alice.wam", PrivateKey: "k", NodeURL: "http://node"},
		LLM: LLMConfig{OpenAI: OpenAIConfig{APIKey: "sk"}},
	}
	cfg.applyDefaults(".")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.TaskQueue.Driver = "kafka"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown queue driver error")
	}
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "WAXKIT_TEST_ACCOUNT=from.file\nWAXKIT_TEST_KEEP=from.file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("WAXKIT_TEST_KEEP", "from.env")
	t.Cleanup(func() { _ = os.Unsetenv("WAXKIT_TEST_ACCOUNT") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("WAXKIT_TEST_ACCOUNT"); got != "from.file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("WAXKIT_TEST_KEEP"); got != "from.env" {
		t.Fatalf("existing variable overwritten: %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}
