package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"WaxAgentKit/internal/config"
	"WaxAgentKit/internal/ratelimit"
	"WaxAgentKit/internal/session"
	"WaxAgentKit/internal/web3"
	"WaxAgentKit/internal/web3/nodepulse"
	"WaxAgentKit/internal/web3/wax"
)

// Registry manages one session connector per configured WAX network.
type Registry struct {
	defaultNetwork string
	connectors     map[string]*wax.Connector
	definitions    web3.NetworkDefinitions
}

// NewRegistry loads network definitions and builds a connector for every
// network. The signing account and key are shared; chain id, node and
// explorer come from the network definition unless overridden in cfg.
func NewRegistry(cfg config.WaxConfig, cache web3.ABICache) (*Registry, error) {
	defs, err := web3.LoadNetworkDefinitions(cfg.NetworksFile)
	if err != nil {
		return nil, err
	}

	defaultNetwork := strings.ToLower(strings.TrimSpace(cfg.Network))
	if defaultNetwork == "" {
		defaultNetwork = defs.Default
	}
	if _, ok := defs.Networks[defaultNetwork]; !ok {
		return nil, fmt.Errorf("默认网络 %s 未在配置中找到", defaultNetwork)
	}

	limiter := ratelimit.New(cfg.RPCRateLimit.RPS, cfg.RPCRateLimit.Burst,
		time.Duration(cfg.RPCRateLimit.IdleTTLSeconds)*time.Second)

	connectors := make(map[string]*wax.Connector, len(defs.Networks))
	for name, def := range defs.Networks {
		sessionCfg := session.Config{
			Actor:      cfg.Account,
			Permission: cfg.Permission,
			PrivateKey: cfg.PrivateKey,
			ChainID:    def.ChainID,
			NodeURL:    def.NodeURL,
			Network:    session.ParseNetwork(name),
		}
		if name == defaultNetwork {
			if cfg.ChainID != "" {
				sessionCfg.ChainID = cfg.ChainID
			}
			if cfg.NodeURL != "" {
				sessionCfg.NodeURL = cfg.NodeURL
			}
		}

		opts := []wax.Option{wax.WithRPCRateLimit(limiter)}
		if cache != nil {
			opts = append(opts, wax.WithABICache(cache, time.Duration(cfg.ABICache.TTLSeconds)*time.Second))
		}
		if sessionCfg.NodeURL == "" {
			opts = append(opts, wax.WithNodeSource(newSelector(cfg.NodePulse, name, def)))
		}

		connector, err := wax.NewConnector(sessionCfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("初始化网络 %s 失败: %w", name, err)
		}
		connectors[name] = connector
	}

	return &Registry{defaultNetwork: defaultNetwork, connectors: connectors, definitions: defs}, nil
}

func newSelector(cfg config.NodePulseConfig, network string, def web3.NetworkDefinition) wax.NodeSource {
	if !cfg.Enabled {
		return &staticNodes{nodes: def.FallbackNodes}
	}
	return nodepulse.New(nodepulse.Config{
		APIURL:         cfg.APIURL,
		Network:        network,
		NodeType:       nodepulse.NodeType(cfg.NodeType),
		NodeCount:      cfg.NodeCount,
		UpdateInterval: time.Duration(cfg.UpdateIntervalSeconds) * time.Second,
		Fallback:       def.FallbackNodes,
	})
}

// DefaultConnector returns the connector of the default network.
func (r *Registry) DefaultConnector() (*wax.Connector, error) {
	if r == nil {
		return nil, errors.New("未初始化的网络注册表")
	}
	connector, ok := r.connectors[r.defaultNetwork]
	if !ok {
		return nil, fmt.Errorf("默认网络 %s 未在注册表中", r.defaultNetwork)
	}
	return connector, nil
}

// Connector returns the connector identified by network name.
func (r *Registry) Connector(name string) (*wax.Connector, bool) {
	if r == nil {
		return nil, false
	}
	connector, ok := r.connectors[strings.ToLower(name)]
	return connector, ok
}

// DefaultNetwork returns the default network name.
func (r *Registry) DefaultNetwork() string {
	if r == nil {
		return ""
	}
	return r.defaultNetwork
}

// Networks returns the list of registered network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
