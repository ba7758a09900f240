package nodepulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"WaxAgentKit/pkg/logger"
)

// NodeType 是 NodePulse 支持的节点类别。
type NodeType string

const (
	Hyperion NodeType = "hyperion"
	Atomic   NodeType = "atomic"
	LightAPI NodeType = "lightapi"
	IPFS     NodeType = "ipfs"
)

const (
	DefaultAPIURL         = "https://nodes.nodepulse.co/nodes"
	DefaultNodeCount      = 5
	DefaultUpdateInterval = 60 * time.Second
)

// ErrNoNodes 表示既没有发现结果也没有兜底节点。
var ErrNoNodes = errors.New("nodepulse: no nodes available")

// Config 控制节点发现。
type Config struct {
	APIURL         string
	Network        string
	NodeType       NodeType
	NodeCount      int
	UpdateInterval time.Duration
	Fallback       []string
	HTTPClient     *http.Client
}

// Selector 从 NodePulse 拉取健康节点并轮询返回。
type Selector struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	nodes     []string
	next      int
	fetchedAt time.Time
}

// New 创建节点选择器。
func New(cfg Config) *Selector {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Network == "" {
		cfg.Network = "mainnet"
	}
	if cfg.NodeType == "" {
		cfg.NodeType = Hyperion
	}
	if cfg.NodeCount <= 0 {
		cfg.NodeCount = DefaultNodeCount
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Selector{cfg: cfg, client: client, now: time.Now}
}

// Node 返回下一个节点地址。列表过期时先刷新；刷新失败沿用旧列表或兜底节点。
func (s *Selector) Node(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.nodes) == 0 || s.now().Sub(s.fetchedAt) >= s.cfg.UpdateInterval {
		s.refreshLocked(ctx)
	}
	if len(s.nodes) == 0 {
		return "", ErrNoNodes
	}
	node := s.nodes[s.next%len(s.nodes)]
	s.next++
	return node, nil
}

// Nodes 返回当前缓存的节点列表副本。
func (s *Selector) Nodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.nodes...)
}

func (s *Selector) refreshLocked(ctx context.Context) {
	log := logger.Named("nodepulse")
	nodes, err := s.fetch(ctx)
	s.fetchedAt = s.now()
	switch {
	case err == nil && len(nodes) > 0:
		s.nodes = nodes
		s.next = 0
		log.Debug("node list refreshed", "network", s.cfg.Network, "count", len(nodes))
	case len(s.nodes) > 0:
		log.Warn("node refresh failed, keeping previous list", "error", err)
	default:
		s.nodes = append([]string(nil), s.cfg.Fallback...)
		s.next = 0
		if err != nil {
			log.Warn("node discovery failed, using fallback nodes", "error", err, "fallback", len(s.nodes))
		}
	}
}

func (s *Selector) fetch(ctx context.Context) ([]string, error) {
	endpoint, err := url.Parse(s.cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse nodepulse url: %w", err)
	}
	q := endpoint.Query()
	q.Set("network", s.cfg.Network)
	q.Set("type", string(s.cfg.NodeType))
	q.Set("count", strconv.Itoa(s.cfg.NodeCount))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request nodepulse: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read nodepulse response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nodepulse returned status %d", resp.StatusCode)
	}
	nodes, err := decodeNodes(body)
	if err != nil {
		return nil, err
	}
	if len(nodes) > s.cfg.NodeCount {
		nodes = nodes[:s.cfg.NodeCount]
	}
	return nodes, nil
}

// decodeNodes 兼容三种返回格式：字符串数组、{url} 对象数组、{"nodes": [...]}。
func decodeNodes(body []byte) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var wrapped struct {
			Nodes []json.RawMessage `json:"nodes"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode nodepulse response: %w", err)
		}
		raw = wrapped.Nodes
	}

	nodes := make([]string, 0, len(raw))
	for _, item := range raw {
		var asString string
		if err := json.Unmarshal(item, &asString); err == nil {
			if u := normalise(asString); u != "" {
				nodes = append(nodes, u)
			}
			continue
		}
		var asObject struct {
			URL      string `json:"url"`
			Endpoint string `json:"endpoint"`
		}
		if err := json.Unmarshal(item, &asObject); err != nil {
			continue
		}
		u := asObject.URL
		if u == "" {
			u = asObject.Endpoint
		}
		if u = normalise(u); u != "" {
			nodes = append(nodes, u)
		}
	}
	return nodes, nil
}

func normalise(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}
