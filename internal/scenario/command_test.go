package scenario_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/scenario"
)

func shNode(t *testing.T) *cluster.Node {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not found in PATH: %v", err)
	}
	return cluster.LocalNode("local-1")
}

func TestCommandServiceHooks(t *testing.T) {
	t.Parallel()
	node := shNode(t)
	marker := filepath.Join(t.TempDir(), "started")

	hook := scenario.NewCommandService(scenario.Commands{
		Start: "touch " + marker,
		Stop:  "rm " + marker,
	})
	require.NoError(t, hook.StartNode(t.Context(), node))
	require.FileExists(t, marker)
	require.NoError(t, hook.StopNode(t.Context(), node))
	require.NoFileExists(t, marker)

	t.Run("empty stop and clean are no-ops", func(t *testing.T) {
		bare := scenario.NewCommandService(scenario.Commands{Start: "true"})
		require.NoError(t, bare.StopNode(t.Context(), node))
		require.NoError(t, bare.CleanNode(t.Context(), node))
	})

	t.Run("start failure carries the command output", func(t *testing.T) {
		failing := scenario.NewCommandService(scenario.Commands{Start: "echo boom >&2; exit 3"})
		err := failing.StartNode(t.Context(), node)
		require.Error(t, err)
		require.ErrorContains(t, err, "boom")
	})
}

func TestCommandServiceWait(t *testing.T) {
	t.Parallel()
	node := shNode(t)

	t.Run("no wait_for finishes immediately", func(t *testing.T) {
		t.Parallel()
		hook := scenario.NewCommandService(scenario.Commands{Start: "true"})
		finished, err := hook.WaitNode(t.Context(), node, time.Nanosecond)
		require.NoError(t, err)
		require.True(t, finished)
	})

	t.Run("finishes once the probe passes", func(t *testing.T) {
		t.Parallel()
		ready := filepath.Join(t.TempDir(), "ready")
		hook := scenario.NewCommandService(scenario.Commands{
			Start:   "true",
			WaitFor: "test -f " + ready,
			Poll:    10 * time.Millisecond,
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(50 * time.Millisecond)
			f, err := os.Create(ready)
			if err == nil {
				f.Close()
			}
		}()

		finished, err := hook.WaitNode(t.Context(), node, 5*time.Second)
		<-done
		require.NoError(t, err)
		require.True(t, finished)
	})

	t.Run("budget exhaustion reports unfinished", func(t *testing.T) {
		t.Parallel()
		hook := scenario.NewCommandService(scenario.Commands{
			Start:   "true",
			WaitFor: "false",
			Poll:    10 * time.Millisecond,
		})
		finished, err := hook.WaitNode(t.Context(), node, 50*time.Millisecond)
		require.NoError(t, err)
		require.False(t, finished)
	})

	t.Run("own timeout shortens a generous window", func(t *testing.T) {
		t.Parallel()
		hook := scenario.NewCommandService(scenario.Commands{
			Start:   "true",
			WaitFor: "false",
			Poll:    10 * time.Millisecond,
			Timeout: 50 * time.Millisecond,
		})
		begin := time.Now()
		finished, err := hook.WaitNode(t.Context(), node, time.Hour)
		require.NoError(t, err)
		require.False(t, finished)
		require.Less(t, time.Since(begin), time.Minute)
	})

	t.Run("cancellation interrupts polling", func(t *testing.T) {
		t.Parallel()
		hook := scenario.NewCommandService(scenario.Commands{
			Start:   "true",
			WaitFor: "false",
			Poll:    50 * time.Millisecond,
		})
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		finished, err := hook.WaitNode(ctx, node, time.Minute)
		require.Error(t, err)
		require.False(t, finished)
	})
}
