package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rig/rig/internal/model"
)

// Pool is a fixed inventory of nodes handed out per OS. Allocation is
// all or nothing: when any OS in the spec is short, no node changes
// hands.
type Pool struct {
	mu        sync.Mutex
	available map[OS][]*Node
	inUse     map[*Node]bool
}

func NewPool(nodes ...*Node) *Pool {
	p := &Pool{
		available: make(map[OS][]*Node),
		inUse:     make(map[*Node]bool),
	}
	for _, n := range nodes {
		p.available[n.OS] = append(p.available[n.OS], n)
	}
	return p
}

func (p *Pool) Alloc(_ context.Context, spec Spec) ([]*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for os, want := range spec {
		if have := len(p.available[os]); have < want {
			return nil, fmt.Errorf("%w: requested %d %s node(s), %d available", model.ErrInsufficientNodes, want, os, have)
		}
	}

	var nodes []*Node
	for _, os := range SupportedOS {
		want := spec[os]
		if want == 0 {
			continue
		}
		taken := p.available[os][:want]
		p.available[os] = p.available[os][want:]
		for _, n := range taken {
			p.inUse[n] = true
		}
		nodes = append(nodes, taken...)
	}
	return nodes, nil
}

func (p *Pool) Free(_ context.Context, node *Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inUse[node] {
		return fmt.Errorf("node %s was not allocated from this pool", node)
	}
	delete(p.inUse, node)
	p.available[node.OS] = append(p.available[node.OS], node)
	return nil
}

// Size reports the total number of nodes the pool manages, allocated
// or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.inUse)
	for _, nodes := range p.available {
		n += len(nodes)
	}
	return n
}

// Available reports how many nodes of the given OS are free right now.
func (p *Pool) Available(os OS) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.available[os])
}
