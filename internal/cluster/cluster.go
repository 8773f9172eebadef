// Package cluster models the pool of machine-like resources a test run
// draws its nodes from.
//
// A Cluster hands out Nodes matching a Spec (operating system to count)
// and takes them back one by one. Node ownership is exclusive: the
// cluster is the single authority, and a service must free every node
// it allocated before another service may receive it. The package ships
// two providers, a static Pool over a fixed inventory and a Docker
// backed cluster which provisions one container per node.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-rig/rig/internal/model"
)

// OS tags a node with its operating system family.
type OS string

const (
	Linux   OS = "linux"
	Windows OS = "windows"
)

// DefaultOS is assumed when a service requests a plain node count.
const DefaultOS = Linux

// SupportedOS lists every OS tag a Spec may use, in the order
// allocations are handed out.
var SupportedOS = []OS{Linux, Windows}

func supported(os OS) bool {
	for _, s := range SupportedOS {
		if s == os {
			return true
		}
	}
	return false
}

// Spec is a validated resource request: how many nodes of each
// operating system a service needs.
type Spec map[OS]int

// NewSpec builds a Spec from either a plain node count or an explicit
// OS to count mapping. The mapping takes precedence when both are
// given; supplying neither is an error wrapping model.ErrNodeSpec, as
// is any unsupported OS tag or non-positive count.
func NewSpec(numNodes int, explicit map[OS]int) (Spec, error) {
	if len(explicit) == 0 {
		if numNodes <= 0 {
			return nil, fmt.Errorf("either a node count or a node spec must be given: %w", model.ErrNodeSpec)
		}
		return Spec{DefaultOS: numNodes}, nil
	}

	spec := make(Spec, len(explicit))
	for os, count := range explicit {
		if !supported(os) {
			return nil, fmt.Errorf("operating system %q is unknown, supported: %s: %w",
				os, osList(), model.ErrNodeSpec)
		}
		if count <= 0 {
			return nil, fmt.Errorf("node count for %q must be positive, got %d: %w",
				os, count, model.ErrNodeSpec)
		}
		spec[os] = count
	}
	return spec, nil
}

// Total is the number of nodes the spec asks for across all OS tags.
func (s Spec) Total() int {
	var total int
	for _, count := range s {
		total += count
	}
	return total
}

func (s Spec) String() string {
	parts := make([]string, 0, len(s))
	for _, os := range SupportedOS {
		if count, ok := s[os]; ok {
			parts = append(parts, fmt.Sprintf("%s:%d", os, count))
		}
	}
	// tags outside SupportedOS can't appear in a validated Spec, but a
	// hand-built one should still render
	var unknown []string
	for os, count := range s {
		if !supported(os) {
			unknown = append(unknown, fmt.Sprintf("%s:%d", os, count))
		}
	}
	sort.Strings(unknown)
	return strings.Join(append(parts, unknown...), " ")
}

func osList() string {
	names := make([]string, len(SupportedOS))
	for i, os := range SupportedOS {
		names[i] = string(os)
	}
	return strings.Join(names, ", ")
}

// Cluster allocates and frees nodes. Alloc returns the nodes in the
// order the provider picked them; callers must not reorder before
// handing them to a service. Free returns a single node to the pool.
type Cluster interface {
	Alloc(ctx context.Context, spec Spec) ([]*Node, error)
	Free(ctx context.Context, node *Node) error
}
