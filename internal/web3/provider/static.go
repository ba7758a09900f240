package provider

import (
	"context"
	"sync"

	"WaxAgentKit/internal/web3/nodepulse"
)

// staticNodes rotates over a fixed node list when discovery is disabled.
type staticNodes struct {
	mu    sync.Mutex
	nodes []string
	next  int
}

func (s *staticNodes) Node(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.nodes) == 0 {
		return "", nodepulse.ErrNoNodes
	}
	node := s.nodes[s.next%len(s.nodes)]
	s.next++
	return node, nil
}
