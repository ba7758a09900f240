package session

import (
	"testing"

	xerrors "WaxAgentKit/internal/errors"
)

const (
	testWIF = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3"
	testK1  = "PVT_K1_2bfGi9rYsXQSXXTvJbDAPhHLQUojjaNLomdm3cEJ1XTzMqUt3V"
)

func TestValidatePrivateKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "legacy wif", key: testWIF},
		{name: "k1", key: testK1},
		{name: "empty", key: "", wantErr: true},
		{name: "bad checksum", key: testWIF[:len(testWIF)-1] + "4", wantErr: true},
		{name: "bad k1 checksum", key: testK1[:len(testK1)-1] + "W", wantErr: true},
		{name: "not base58", key: "0OIl", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePrivateKey(tc.key)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.key)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{Actor: "alice.wam", PrivateKey: testWIF, Network: Testnet}.WithDefaults()
	if cfg.Permission != DefaultPermission {
		t.Fatalf("expected default permission, got %q", cfg.Permission)
	}
	if cfg.ChainID != TestnetChainID {
		t.Fatalf("expected testnet chain id, got %q", cfg.ChainID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Authorization() != "alice.wam@active" {
		t.Fatalf("unexpected authorization %q", cfg.Authorization())
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	base := Config{Actor: "alice.wam", PrivateKey: testWIF}.WithDefaults()

	bad := base
	bad.Actor = "Alice"
	if err := bad.Validate(); xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
		t.Fatalf("expected invalid input for uppercase actor, got %v", err)
	}

	bad = base
	bad.ChainID = "abc"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected chain id error")
	}

	bad = base
	bad.PrivateKey = "not-a-key"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected private key error")
	}
}

func TestIsAccountName(t *testing.T) {
	for _, name := range []string{"eosio", "eosio.token", "swap.alcor", "a1b2c3d4e5.z"} {
		if !IsAccountName(name) {
			t.Fatalf("%q should be valid", name)
		}
	}
	for _, name := range []string{"", "toolongaccount1", "bad6", "trailing.", "UPPER"} {
		if IsAccountName(name) {
			t.Fatalf("%q should be invalid", name)
		}
	}
}

func TestTransactionURL(t *testing.T) {
	if got := TransactionURL(Mainnet, "abc"); got != "https://waxblock.io/transaction/abc" {
		t.Fatalf("unexpected mainnet url %q", got)
	}
	if got := TransactionURL(Testnet, "abc"); got != "https://testnet.waxblock.io/transaction/abc" {
		t.Fatalf("unexpected testnet url %q", got)
	}
	if ParseNetwork("TESTNET") != Testnet || ParseNetwork("whatever") != Mainnet {
		t.Fatalf("unexpected ParseNetwork result")
	}
}

func TestSigningKeyReencodesK1AsWIF(t *testing.T) {
	got, err := SigningKey(testK1)
	if err != nil {
		t.Fatalf("SigningKey(k1): %v", err)
	}
	if got != testWIF {
		t.Fatalf("SigningKey(k1) = %s, want %s", got, testWIF)
	}
	if got, err := SigningKey("  " + testWIF + "\n"); err != nil || got != testWIF {
		t.Fatalf("SigningKey(wif) = %q, %v", got, err)
	}
	if _, err := SigningKey(testK1[:len(testK1)-1] + "W"); err == nil {
		t.Fatalf("corrupted k1 key should be rejected")
	}
}
