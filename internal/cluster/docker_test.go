package cluster_test

import (
	"bytes"
	"context"
	"os/exec"
	"testing"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/model"

	"github.com/stretchr/testify/require"
)

func TestDockerClusterLinuxOnly(t *testing.T) {
	t.Parallel()

	cl := cluster.NewDockerCluster("")
	_, err := cl.Alloc(t.Context(), cluster.Spec{cluster.Windows: 1})
	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrInsufficientNodes)
	require.ErrorContains(t, err, "docker clusters provide only linux nodes")
}

func TestDockerCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("starting containers is not short")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not found in PATH: %v", err)
	}

	cl := cluster.NewDockerCluster(cluster.DefaultDockerImage)

	nodes, err := cl.Alloc(t.Context(), cluster.Spec{cluster.Linux: 1})
	if err != nil {
		t.Skipf("docker daemon not usable: %v", err)
	}
	require.Len(t, nodes, 1)
	node := nodes[0]
	t.Cleanup(func() {
		// already freed when the test got to the end, the cluster then
		// just refuses the stranger
		_ = cl.Free(context.Background(), node)
	})

	require.NoError(t, node.Account.Run(t.Context(), "echo hello > /tmp/probe"))

	out, err := node.Account.Output(t.Context(), "cat /tmp/probe")
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(out))

	err = node.Account.Run(t.Context(), "exit 7")
	require.Error(t, err)
	require.ErrorContains(t, err, "exited 7")

	var buf bytes.Buffer
	require.NoError(t, node.Account.Fetch(t.Context(), "/tmp/probe", &buf))
	require.Equal(t, "hello\n", buf.String())

	require.NoError(t, cl.Free(t.Context(), node))

	t.Run("free of a foreign node", func(t *testing.T) {
		err := cl.Free(t.Context(), cluster.LocalNode("stranger"))
		require.Error(t, err)
		require.ErrorContains(t, err, "was not allocated from this cluster")
	})
}
