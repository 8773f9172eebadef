package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/log"
	"github.com/go-rig/rig/internal/model"
	"github.com/go-rig/rig/internal/registry"
)

// LogDescriptor declares one log file a service writes on its nodes.
// The controller never touches these paths, collection tooling does.
type LogDescriptor struct {
	Path           string
	CollectDefault bool
}

// Config describes one service instance before construction.
type Config struct {
	// Name tags the service type, e.g. "kafka". Instances sharing a
	// name share an order counter.
	Name string
	// NumNodes asks for this many DefaultOS nodes. Ignored when
	// NodeSpec is set.
	NumNodes int
	// NodeSpec asks for an explicit OS to count mapping.
	NodeSpec map[cluster.OS]int
	// Logs maps a log name to where the service writes it on a node.
	Logs map[string]LogDescriptor
}

// Deps are the collaborators one service instance works against.
type Deps struct {
	Cluster  cluster.Cluster
	Registry *registry.Registry
	Logger   *slog.Logger
}

// Service drives one deployable instance across its allocated nodes.
// Methods are meant to be called from a single goroutine. Overlap
// between instances comes from phase interleaving, see RunParallel.
type Service struct {
	hook NodeHook
	deps Deps
	cfg  Config

	identity  registry.Identity
	moduleTag string
	logger    *slog.Logger

	nodes             []*cluster.Node
	formerlyAllocated []string

	initTime      time.Time
	startTime     time.Time
	startDuration time.Duration
	stopTime      time.Time
	stopDuration  time.Duration
	cleanTime     time.Time

	scratchDir string
}

// New validates the node request, allocates nodes, and registers the
// instance, in that order. Registration happens only after allocation
// succeeded so teardown sweeps never meet a node-less instance.
func New(ctx context.Context, hook NodeHook, cfg Config, deps Deps) (*Service, error) {
	if hook == nil {
		return nil, errors.New("hook must not be nil")
	}
	if deps.Cluster == nil {
		return nil, errors.New("cluster must not be nil")
	}
	if deps.Registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Name == "" {
		return nil, errors.New("service name must not be empty")
	}

	spec, err := cluster.NewSpec(cfg.NumNodes, cfg.NodeSpec)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", cfg.Name, err)
	}

	s := &Service{
		hook:          hook,
		deps:          deps,
		cfg:           cfg,
		moduleTag:     moduleTag(hook),
		logger:        deps.Logger,
		initTime:      time.Now(),
		startDuration: -1,
		stopDuration:  -1,
	}

	if err := s.allocate(ctx, spec); err != nil {
		return nil, err
	}

	// identifiers only, not the nodes themselves, these survive Free
	s.formerlyAllocated = make([]string, 0, len(s.nodes))
	for _, node := range s.nodes {
		s.formerlyAllocated = append(s.formerlyAllocated, node.Account.String())
	}

	s.identity = deps.Registry.Register(cfg.Name, s)
	s.logger = deps.Logger.With("service", s.identity.String())
	return s, nil
}

// allocate requests nodes matching spec and binds their logger slots.
// A slot found bound on a fresh node means its previous owner never
// freed it, which is fatal, the run operator has to intervene.
func (s *Service) allocate(ctx context.Context, spec cluster.Spec) error {
	if s.Allocated() {
		return fmt.Errorf("service %s: %w", s.cfg.Name, model.ErrAlreadyAllocated)
	}

	s.logger.DebugContext(ctx, "requesting nodes from the cluster", "spec", spec.String())

	nodes, err := s.deps.Cluster.Alloc(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w, currently registered services: %s", err, s.deps.Registry)
	}

	for _, node := range nodes {
		if prev := node.Account.Logger(); prev != nil {
			// tell the leaking service's log stream, not just ours
			prev.ErrorContext(ctx, "node handed out while still bound to a service which did not free it",
				"node", node.String())
			return fmt.Errorf("%w: node %s handed to service %s", model.ErrDirtyNode, node, s.cfg.Name)
		}
		node.Account.SetLogger(s.deps.Logger)
	}

	s.nodes = nodes
	s.logger.DebugContext(ctx, "allocated nodes", "count", len(nodes))
	return nil
}

// Allocate requests the instance's nodes again after a Free. Calling
// it while nodes are held is a caller bug and fails with
// model.ErrAlreadyAllocated, leaving the held nodes untouched.
func (s *Service) Allocate(ctx context.Context) error {
	spec, err := cluster.NewSpec(s.cfg.NumNodes, s.cfg.NodeSpec)
	if err != nil {
		return fmt.Errorf("service %s: %w", s.cfg.Name, err)
	}
	return s.allocate(ctx, spec)
}

// Free clears each node's logger slot and returns it to the cluster.
// The local node list empties even when the cluster refuses a node, so
// a second Free observes nothing left to do.
func (s *Service) Free(ctx context.Context) error {
	ctx = s.opCtx(ctx)
	var errs []error
	for _, node := range s.nodes {
		s.logger.InfoContext(ctx, "freeing node", "node", node.String())
		node.Account.SetLogger(nil)
		if err := s.deps.Cluster.Free(ctx, node); err != nil {
			errs = append(errs, fmt.Errorf("freeing node %s: %w", node, err))
		}
	}
	s.nodes = nil
	return errors.Join(errs...)
}

// ScratchDir lazily creates a private directory for transient local
// files and returns its path. The path is only guaranteed to exist
// once this returned.
func (s *Service) ScratchDir() (string, error) {
	if s.scratchDir == "" {
		dir, err := os.MkdirTemp("", "rig-"+s.cfg.Name+"-")
		if err != nil {
			return "", fmt.Errorf("can't create scratch dir: %w", err)
		}
		s.scratchDir = dir
	}
	return s.scratchDir, nil
}

// Close removes the scratch directory if one was created. Nodes are
// not touched, that is what Free does. Safe to call twice.
func (s *Service) Close() error {
	if s.scratchDir == "" {
		return nil
	}
	err := os.RemoveAll(s.scratchDir)
	s.scratchDir = ""
	return err
}

// Allocated reports whether the instance currently holds nodes.
func (s *Service) Allocated() bool { return len(s.nodes) > 0 }

// Nodes returns the live node list in allocation order.
func (s *Service) Nodes() []*cluster.Node { return s.nodes }

// GetNode returns the idx-th node counting from 1, the way node ids
// show up in logs and snapshots.
func (s *Service) GetNode(idx int) (*cluster.Node, error) {
	if idx < 1 || idx > len(s.nodes) {
		return nil, fmt.Errorf("service %s has no node %d, holds %d node(s)", s.ID(), idx, len(s.nodes))
	}
	return s.nodes[idx-1], nil
}

// Idx is the 1-based id of node within this instance, -1 when the node
// does not belong to it.
func (s *Service) Idx(node *cluster.Node) int {
	for i, n := range s.nodes {
		if n == node {
			return i + 1
		}
	}
	return -1
}

// ID is the human readable service id, unique within a run.
func (s *Service) ID() string { return s.identity.String() }

// Name returns the type tag the instance was created under.
func (s *Service) Name() string { return s.cfg.Name }

// Identity exposes the registration record.
func (s *Service) Identity() registry.Identity { return s.identity }

// Logs lists the log files the service declares on its nodes.
func (s *Service) Logs() map[string]LogDescriptor { return s.cfg.Logs }

// WhoAmI names the instance, or one of its nodes, for log lines and
// error messages.
func (s *Service) WhoAmI(node *cluster.Node) string {
	if node == nil {
		return s.ID()
	}
	return fmt.Sprintf("%s node %d on %s", s.ID(), s.Idx(node), node.Account.Hostname)
}

func (s *Service) String() string {
	hostnames := make([]string, 0, len(s.nodes))
	for _, n := range s.nodes {
		hostnames = append(hostnames, n.Account.Hostname)
	}
	return fmt.Sprintf("<%s: num_nodes: %d, nodes: %v>", s.ID(), len(s.nodes), hostnames)
}

// opCtx puts the service identity into ctx so every log line made
// under a hook carries it.
func (s *Service) opCtx(ctx context.Context) context.Context {
	return log.ContextAttrs(ctx, slog.String("service", s.ID()))
}

// moduleTag names the package the concrete hook type comes from. It
// becomes the snapshot's module field.
func moduleTag(hook NodeHook) string {
	t := reflect.TypeOf(hook)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	if pkg := t.PkgPath(); pkg != "" {
		return pkg
	}
	return "unknown"
}
