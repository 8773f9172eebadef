package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// LocalTransport runs node commands as child processes of the harness
// itself. It backs single-machine clusters where every node is a named
// view of localhost.
type LocalTransport struct {
	Shell string   // defaults to /bin/sh
	Env   []string // appended to the harness environment
}

func (t *LocalTransport) shell() string {
	if t.Shell != "" {
		return t.Shell
	}
	return "/bin/sh"
}

func (t *LocalTransport) command(ctx context.Context, cmd string) *exec.Cmd {
	c := exec.CommandContext(ctx, t.shell(), "-c", cmd)
	c.Env = append(os.Environ(), t.Env...)
	return c
}

func (t *LocalTransport) Run(ctx context.Context, cmd string) error {
	slog.DebugContext(ctx, "running local command", "cmd", cmd)
	out, err := t.command(ctx, cmd).CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %q failed: %w: %s", cmd, err, bytes.TrimSpace(out))
	}
	return nil
}

func (t *LocalTransport) Output(ctx context.Context, cmd string) ([]byte, error) {
	slog.DebugContext(ctx, "running local command", "cmd", cmd)
	out, err := t.command(ctx, cmd).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("command %q failed: %w: %s", cmd, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return out, fmt.Errorf("command %q failed: %w", cmd, err)
	}
	return out, nil
}

func (t *LocalTransport) Fetch(_ context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't fetch %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("can't fetch %s: %w", path, err)
	}
	return nil
}

// LocalNode makes a node whose account runs commands on this machine.
func LocalNode(hostname string) *Node {
	return NewNode(DefaultOS, NewAccount(hostname, &LocalTransport{}))
}

// LocalPool builds a pool of n local nodes named local-1 .. local-n.
func LocalPool(n int) *Pool {
	nodes := make([]*Node, 0, n)
	for i := 1; i <= n; i++ {
		nodes = append(nodes, LocalNode(fmt.Sprintf("local-%d", i)))
	}
	return NewPool(nodes...)
}

// LocalInventory builds a pool from a per-OS node count, the shape the
// harness config declares an inventory in. Nodes of the default OS keep
// the local-N names LocalPool uses, others are named by their OS tag.
func LocalInventory(counts map[OS]int) *Pool {
	var nodes []*Node
	for _, os := range SupportedOS {
		for i := 1; i <= counts[os]; i++ {
			hostname := fmt.Sprintf("%s-%d", os, i)
			if os == DefaultOS {
				hostname = fmt.Sprintf("local-%d", i)
			}
			nodes = append(nodes, NewNode(os, NewAccount(hostname, &LocalTransport{})))
		}
	}
	return NewPool(nodes...)
}
