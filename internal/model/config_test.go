package model_test

import (
	"strings"
	"testing"

	"github.com/go-rig/rig/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
cluster:
  provider: static
  nodes:
    linux: 2
    windows: 1
service:
  mode: scenario
  verbose: true
  log: stderr
  logs_dir: ./rig-logs
history:
  enabled: true
  db: rig.db
schedule:
  cron: "*/5 * * * *"
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.ClusterProviderStatic, cfg.Cluster.Provider)
	require.Equal(t, map[string]int{"linux": 2, "windows": 1}, cfg.Cluster.Nodes)
	require.Equal(t, model.ServiceModeScenario, cfg.Service.Mode)
	require.NotNil(t, cfg.Service.Verbose)
	require.True(t, *cfg.Service.Verbose)
	require.NotNil(t, cfg.Service.Log)
	require.Equal(t, model.LogStderr, *cfg.Service.Log)
	require.NotNil(t, cfg.Service.LogsDir)
	require.Equal(t, "./rig-logs", *cfg.Service.LogsDir)
	require.NotNil(t, cfg.History)
	require.NotNil(t, cfg.History.Enabled)
	require.True(t, *cfg.History.Enabled)
	require.Equal(t, "rig.db", cfg.History.DB)
	require.NotNil(t, cfg.Schedule)
	require.Equal(t, "*/5 * * * *", cfg.Schedule.Cron)
	require.Empty(t, cfg.Schedule.Every)
}

func TestLoadConfigDefaults(t *testing.T) {
	// provider, mode and version all carry schema defaults, an empty
	// document is a runnable config
	cfg, err := model.LoadConfig(strings.NewReader("{}\n"))
	require.NoError(t, err)
	require.Equal(t, model.ClusterProviderStatic, cfg.Cluster.Provider)
	require.Equal(t, model.ServiceModeScenario, cfg.Service.Mode)
	require.Nil(t, cfg.History)
	require.Nil(t, cfg.Schedule)
}

func TestLoadConfig_Fail(t *testing.T) {
	// Missing required history.db
	yml := `
version: 0
cluster:
  provider: static
service:
  mode: scenario
history:
  enabled: true
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)
	require.EqualError(t, err, "#Config.history.db: incomplete value string")
}

func TestLoadConfigRejects(t *testing.T) {
	testCases := []struct {
		scenario string
		yml      string
		contains string
	}{
		{
			scenario: "unknown provider",
			yml:      "cluster:\n  provider: vagrant\n",
			contains: "cluster.provider",
		},
		{
			scenario: "unknown mode",
			yml:      "service:\n  mode: manual\n",
			contains: "service.mode",
		},
		{
			scenario: "unknown node os",
			yml:      "cluster:\n  nodes:\n    plan9: 1\n",
			contains: "plan9",
		},
		{
			scenario: "non-positive node count",
			yml:      "cluster:\n  nodes:\n    linux: 0\n",
			contains: "cluster.nodes.linux",
		},
		{
			scenario: "wrong version",
			yml:      "version: 7\n",
			contains: "version",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.yml))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.contains)

			details := model.CueErrDetails(err)
			require.NotEmpty(t, details)
		})
	}
}
