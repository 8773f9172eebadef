package service_test

import (
	"encoding/json"
	"testing"

	"github.com/go-rig/rig/internal/service"

	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("fresh instance", func(t *testing.T) {
		t.Parallel()
		s, err := service.New(t.Context(), recHook{}, service.Config{Name: "echo", NumNodes: 2}, newDeps(2))
		require.NoError(t, err)

		snap := s.Snapshot()
		require.Equal(t, "echo", snap.Type)
		require.Contains(t, snap.Module, "github.com/go-rig/rig/internal/service")
		require.Equal(t, "echo-0-0", snap.ServiceID)
		require.Equal(t, []string{"local-1", "local-2"}, snap.Nodes)
		require.False(t, snap.Lifecycle.InitTime.IsZero())
		require.True(t, snap.Lifecycle.StartTime.IsZero())
		require.True(t, snap.Lifecycle.StopTime.IsZero())
		require.True(t, snap.Lifecycle.CleanTime.IsZero())
		require.Equal(t, -1.0, snap.Lifecycle.StartDuration)
		require.Equal(t, -1.0, snap.Lifecycle.StopDuration)
	})

	t.Run("after a full cycle", func(t *testing.T) {
		t.Parallel()
		s, err := service.New(t.Context(), recHook{}, service.Config{Name: "echo", NumNodes: 1}, newDeps(1))
		require.NoError(t, err)
		require.NoError(t, s.Run(t.Context()))
		require.NoError(t, s.Clean(t.Context()))

		snap := s.Snapshot()
		require.False(t, snap.Lifecycle.StartTime.IsZero())
		require.False(t, snap.Lifecycle.StopTime.IsZero())
		require.False(t, snap.Lifecycle.CleanTime.IsZero())
		require.GreaterOrEqual(t, snap.Lifecycle.StartDuration, 0.0)
		require.GreaterOrEqual(t, snap.Lifecycle.StopDuration, 0.0)
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		t.Parallel()
		s, err := service.New(t.Context(), recHook{}, service.Config{Name: "echo", NumNodes: 1}, newDeps(1))
		require.NoError(t, err)

		snap := s.Snapshot()
		snap.Nodes[0] = "mangled"
		require.Equal(t, []string{"local-1"}, s.Snapshot().Nodes)
	})
}

func TestSnapshotJSON(t *testing.T) {
	t.Parallel()

	s, err := service.New(t.Context(), recHook{}, service.Config{Name: "echo", NumNodes: 1}, newDeps(1))
	require.NoError(t, err)

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, "echo", m["type"])
	require.Equal(t, "echo-0-0", m["service_id"])
	require.Equal(t, []any{"local-1"}, m["nodes"])

	lifecycle, ok := m["lifecycle"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, lifecycle, "init_time")
	require.Equal(t, -1.0, lifecycle["start_duration_seconds"])
	require.Equal(t, -1.0, lifecycle["stop_duration_seconds"])
	// timestamps of phases which never ran are left out entirely
	require.NotContains(t, lifecycle, "start_time")
	require.NotContains(t, lifecycle, "stop_time")
	require.NotContains(t, lifecycle, "clean_time")
}
