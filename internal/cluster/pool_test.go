package cluster_test

import (
	"fmt"
	"testing"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/model"

	"github.com/stretchr/testify/require"
)

func windowsNode(hostname string) *cluster.Node {
	return cluster.NewNode(cluster.Windows, cluster.NewAccount(hostname, &cluster.LocalTransport{}))
}

func TestPoolAlloc(t *testing.T) {
	t.Parallel()

	t.Run("fifo order", func(t *testing.T) {
		t.Parallel()
		pool := cluster.LocalPool(3)

		nodes, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 2})
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		require.Equal(t, "local-1", nodes[0].String())
		require.Equal(t, "local-2", nodes[1].String())
		require.Equal(t, 1, pool.Available(cluster.Linux))
	})

	t.Run("linux before windows", func(t *testing.T) {
		t.Parallel()
		pool := cluster.NewPool(
			windowsNode("win-1"),
			cluster.LocalNode("lin-1"),
		)

		nodes, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 1, cluster.Windows: 1})
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		require.Equal(t, cluster.Linux, nodes[0].OS)
		require.Equal(t, cluster.Windows, nodes[1].OS)
	})

	t.Run("all or nothing", func(t *testing.T) {
		t.Parallel()
		pool := cluster.NewPool(
			cluster.LocalNode("lin-1"),
			cluster.LocalNode("lin-2"),
			windowsNode("win-1"),
		)

		_, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 1, cluster.Windows: 2})
		require.Error(t, err)
		require.ErrorIs(t, err, model.ErrInsufficientNodes)
		require.ErrorContains(t, err, "requested 2 windows node(s), 1 available")

		// the failed request must not have taken the linux node
		require.Equal(t, 2, pool.Available(cluster.Linux))
		require.Equal(t, 1, pool.Available(cluster.Windows))
	})
}

func TestPoolFree(t *testing.T) {
	t.Parallel()

	pool := cluster.LocalPool(1)
	nodes, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 1})
	require.NoError(t, err)
	require.Equal(t, 0, pool.Available(cluster.Linux))

	require.NoError(t, pool.Free(t.Context(), nodes[0]))
	require.Equal(t, 1, pool.Available(cluster.Linux))

	t.Run("double free", func(t *testing.T) {
		err := pool.Free(t.Context(), nodes[0])
		require.Error(t, err)
		require.ErrorContains(t, err, "was not allocated from this pool")
	})

	t.Run("foreign node", func(t *testing.T) {
		err := pool.Free(t.Context(), cluster.LocalNode("stranger"))
		require.Error(t, err)
	})

	t.Run("freed node comes back", func(t *testing.T) {
		again, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 1})
		require.NoError(t, err)
		require.Same(t, nodes[0], again[0])
	})
}

func TestPoolSize(t *testing.T) {
	t.Parallel()

	pool := cluster.LocalPool(4)
	require.Equal(t, 4, pool.Size())

	_, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 3})
	require.NoError(t, err)
	require.Equal(t, 4, pool.Size())
	require.Equal(t, 1, pool.Available(cluster.Linux))
}

func TestLocalPoolNames(t *testing.T) {
	t.Parallel()

	pool := cluster.LocalPool(2)
	nodes, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 2})
	require.NoError(t, err)
	for i, n := range nodes {
		require.Equal(t, fmt.Sprintf("local-%d", i+1), n.Account.Hostname)
	}
}

func TestLocalInventory(t *testing.T) {
	t.Parallel()

	pool := cluster.LocalInventory(map[cluster.OS]int{
		cluster.Linux:   2,
		cluster.Windows: 1,
	})
	require.Equal(t, 3, pool.Size())

	nodes, err := pool.Alloc(t.Context(), cluster.Spec{cluster.Linux: 2, cluster.Windows: 1})
	require.NoError(t, err)
	require.Equal(t, "local-1", nodes[0].Account.Hostname)
	require.Equal(t, "local-2", nodes[1].Account.Hostname)
	require.Equal(t, "windows-1", nodes[2].Account.Hostname)
	require.Equal(t, cluster.Windows, nodes[2].OS)
}
