package scenario

import (
	"context"
	"time"

	"github.com/go-rig/rig/internal/cluster"
)

// DefaultPoll spaces wait_for probes when the definition does not set
// its own interval.
const DefaultPoll = time.Second

// CommandService adapts a command set to the node hook surface. Every
// hook runs its command through the account of the node it is given.
type CommandService struct {
	cmds Commands
}

func NewCommandService(cmds Commands) *CommandService {
	return &CommandService{cmds: cmds}
}

func (c *CommandService) StartNode(ctx context.Context, node *cluster.Node) error {
	return node.Account.Run(ctx, c.cmds.Start)
}

func (c *CommandService) StopNode(ctx context.Context, node *cluster.Node) error {
	if c.cmds.Stop == "" {
		return nil
	}
	return node.Account.Run(ctx, c.cmds.Stop)
}

func (c *CommandService) CleanNode(ctx context.Context, node *cluster.Node) error {
	if c.cmds.Clean == "" {
		return nil
	}
	return node.Account.Run(ctx, c.cmds.Clean)
}

// WaitNode polls the wait_for command until it exits zero or the next
// probe would overrun the remaining budget. The definition's own
// timeout shortens the window when it is smaller. Without a wait_for
// command the node counts as finished right away.
func (c *CommandService) WaitNode(ctx context.Context, node *cluster.Node, remaining time.Duration) (bool, error) {
	if c.cmds.WaitFor == "" {
		return true, nil
	}
	if c.cmds.Timeout > 0 && c.cmds.Timeout < remaining {
		remaining = c.cmds.Timeout
	}
	poll := c.cmds.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	deadline := time.Now().Add(remaining)
	for {
		if err := node.Account.Run(ctx, c.cmds.WaitFor); err == nil {
			return true, nil
		}
		if time.Until(deadline) < poll {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(poll):
		}
	}
}
