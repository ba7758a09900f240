package session

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	xerrors "WaxAgentKit/internal/errors"
)

// Network 标识 WAX 主网或测试网。
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// 公开链 ID。
const (
	MainnetChainID = "1064487b3cd1a897ce03ae5b6a865651747e2e152090f99c1d19d44e01aea5a4"
	TestnetChainID = "f16b1833c747c43682f4386fca9cbb327929334a762755ebec17f6f23c9b8a12"
)

// DefaultPermission 是签名时使用的权限名。
const DefaultPermission = "active"

var accountNamePattern = regexp.MustCompile(`^[a-z1-5.]{1,12}$`)

// ParseNetwork 把配置字符串转换为 Network，未知值按主网处理。
func ParseNetwork(value string) Network {
	if strings.EqualFold(strings.TrimSpace(value), string(Testnet)) {
		return Testnet
	}
	return Mainnet
}

// ChainID 返回该网络的默认链 ID。
func (n Network) ChainID() string {
	if n == Testnet {
		return TestnetChainID
	}
	return MainnetChainID
}

// TransactionURL 返回区块浏览器中的交易链接。
func TransactionURL(network Network, txID string) string {
	if network == Testnet {
		return "https://testnet.waxblock.io/transaction/" + txID
	}
	return "https://waxblock.io/transaction/" + txID
}

// Config 描述一次签名会话：账户、权限、私钥、链 ID 与节点。
type Config struct {
	Actor      string
	Permission string
	PrivateKey string
	ChainID    string
	NodeURL    string
	Network    Network
}

// WithDefaults 补全权限、网络与链 ID。
func (c Config) WithDefaults() Config {
	c.Actor = strings.TrimSpace(c.Actor)
	if c.Permission == "" {
		c.Permission = DefaultPermission
	}
	if c.Network == "" {
		c.Network = Mainnet
	}
	if c.ChainID == "" {
		c.ChainID = c.Network.ChainID()
	}
	return c
}

// Validate 检查会话参数，返回 INVALID_INPUT 错误。
func (c Config) Validate() error {
	if !IsAccountName(c.Actor) {
		return xerrors.Newf(xerrors.CodeInvalidInput, "invalid account name %q", c.Actor)
	}
	if !IsAccountName(c.Permission) {
		return xerrors.Newf(xerrors.CodeInvalidInput, "invalid permission %q", c.Permission)
	}
	if err := validateChainID(c.ChainID); err != nil {
		return err
	}
	if err := ValidatePrivateKey(c.PrivateKey); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidInput, err, "invalid private key")
	}
	return nil
}

// Authorization 返回 actor@permission。
func (c Config) Authorization() string {
	return fmt.Sprintf("%s@%s", c.Actor, c.Permission)
}

// IsAccountName 判断是否为合法的 Antelope 账户名。
func IsAccountName(name string) bool {
	if !accountNamePattern.MatchString(name) {
		return false
	}
	return !strings.HasSuffix(name, ".")
}

func validateChainID(id string) error {
	if len(id) != 64 {
		return xerrors.Newf(xerrors.CodeInvalidInput, "chain id must be 64 hex characters, got %d", len(id))
	}
	if _, err := hex.DecodeString(id); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidInput, err, "chain id is not hex")
	}
	return nil
}
