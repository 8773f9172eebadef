package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/model"
)

// DefaultWaitTimeout bounds Wait when the caller does not pick a
// budget.
const DefaultWaitTimeout = 600 * time.Second

// NodeHook is the per-node contract a concrete service type brings.
// The controller calls the hooks in allocation order, one node at a
// time.
//
// WaitNode reports whether the node finished its work. It must return
// once remaining elapses, the controller has no way to interrupt it.
type NodeHook interface {
	StartNode(ctx context.Context, node *cluster.Node) error
	StopNode(ctx context.Context, node *cluster.Node) error
	WaitNode(ctx context.Context, node *cluster.Node, remaining time.Duration) (finished bool, err error)
	CleanNode(ctx context.Context, node *cluster.Node) error
}

// UnimplementedHooks supplies defaults for the NodeHook contract.
// Embed it and override what the service needs. CleanNode degrades to
// a logged no-op, fine for services leaving no persistent state. The
// other hooks fail with model.ErrHookNotImplemented so a missing
// implementation surfaces as an error instead of doing nothing.
type UnimplementedHooks struct{}

func (UnimplementedHooks) StartNode(_ context.Context, _ *cluster.Node) error {
	return fmt.Errorf("StartNode: %w", model.ErrHookNotImplemented)
}

func (UnimplementedHooks) StopNode(_ context.Context, _ *cluster.Node) error {
	return fmt.Errorf("StopNode: %w", model.ErrHookNotImplemented)
}

func (UnimplementedHooks) WaitNode(_ context.Context, _ *cluster.Node, _ time.Duration) (bool, error) {
	return false, fmt.Errorf("WaitNode: %w", model.ErrHookNotImplemented)
}

func (UnimplementedHooks) CleanNode(ctx context.Context, node *cluster.Node) error {
	slog.WarnContext(ctx, "clean hook not implemented, leaving node as is", "node", node.String())
	return nil
}
