package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Default  string                       `yaml:"default"`
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes one WAX network.
type NetworkDefinition struct {
	ChainID       string   `yaml:"chain_id"`
	NodeURL       string   `yaml:"node_url"`
	Explorer      string   `yaml:"explorer"`
	FallbackNodes []string `yaml:"fallback_nodes"`
	Description   string   `yaml:"description"`
}

// DefaultNetworkDefinitions is used when no networks file is configured.
func DefaultNetworkDefinitions() NetworkDefinitions {
	return NetworkDefinitions{
		Default: "mainnet",
		Networks: map[string]NetworkDefinition{
			"mainnet": {
				ChainID:       "1064487b3cd1a897ce03ae5b6a865651747e2e152090f99c1d19d44e01aea5a4",
				Explorer:      "https://waxblock.io",
				FallbackNodes: []string{"https://wax.greymass.com", "https://api.waxsweden.org"},
				Description:   "WAX mainnet",
			},
			"testnet": {
				ChainID:       "f16b1833c747c43682f4386fca9cbb327929334a762755ebec17f6f23c9b8a12",
				Explorer:      "https://testnet.waxblock.io",
				FallbackNodes: []string{"https://testnet.waxsweden.org", "https://waxtestnet.greymass.com"},
				Description:   "WAX testnet",
			},
		},
	}
}

// LoadNetworkDefinitions parses the YAML file containing network metadata.
// An empty path yields the built-in definitions; entries in the file override
// them by name.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	defs := DefaultNetworkDefinitions()
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var loaded NetworkDefinitions
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	for name, def := range loaded.Networks {
		defs.Networks[strings.ToLower(name)] = def
	}
	if loaded.Default != "" {
		defs.Default = strings.ToLower(loaded.Default)
	}
	if _, ok := defs.Networks[defs.Default]; !ok {
		return NetworkDefinitions{}, fmt.Errorf("默认网络 %s 未在配置中找到", defs.Default)
	}
	return defs, nil
}

// Names returns the configured network names in sorted order.
func (d NetworkDefinitions) Names() []string {
	names := make([]string, 0, len(d.Networks))
	for name := range d.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
