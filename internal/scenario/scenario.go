// Package scenario turns the declarative service list of the harness
// config into running service instances backed by shell commands, and
// drives whole runs, one-shot or on a schedule.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/service"
)

// Commands maps the lifecycle hooks onto shell commands executed
// through a node's transport. Empty stop, clean, and wait_for entries
// are no-ops. Timeout caps how long a node is waited for; zero leaves
// the caller's whole budget in place.
type Commands struct {
	Start   string        `mapstructure:"start"`
	Stop    string        `mapstructure:"stop"`
	Clean   string        `mapstructure:"clean"`
	WaitFor string        `mapstructure:"wait_for"`
	Poll    time.Duration `mapstructure:"poll"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogDef declares one log file the commands write on each node.
type LogDef struct {
	Path    string `mapstructure:"path"`
	Collect bool   `mapstructure:"collect"`
}

// ServiceDef describes one service instance of the scenario.
type ServiceDef struct {
	Name     string            `mapstructure:"name"`
	NumNodes int               `mapstructure:"num_nodes"`
	NodeSpec map[string]int    `mapstructure:"node_spec"`
	Commands Commands          `mapstructure:"commands"`
	Logs     map[string]LogDef `mapstructure:"logs"`
}

// Scenario is what a run executes: an ordered service list and the way
// to drive it. With Parallel set the services move through their
// lifecycle phases in lockstep instead of one after another.
type Scenario struct {
	Name     string       `mapstructure:"name"`
	Parallel bool         `mapstructure:"parallel"`
	Services []ServiceDef `mapstructure:"services"`
}

// ParseConfig unmarshals the scenario under the given viper key. An
// unnamed scenario gets the name "scenario".
func ParseConfig(key string) (Scenario, error) {
	var sc Scenario
	if err := viper.UnmarshalKey(key, &sc); err != nil {
		return Scenario{}, err
	}
	if sc.Name == "" {
		sc.Name = "scenario"
	}
	return sc, nil
}

// Validate rejects broken definitions up front, before any of them
// got as far as allocating nodes.
func (sc Scenario) Validate() error {
	if len(sc.Services) == 0 {
		return fmt.Errorf("scenario %s has no services", sc.Name)
	}
	for i, def := range sc.Services {
		if def.Name == "" {
			return fmt.Errorf("scenario %s: service #%d has no name", sc.Name, i+1)
		}
		if def.Commands.Start == "" {
			return fmt.Errorf("scenario %s: service %s has no start command", sc.Name, def.Name)
		}
		if def.NumNodes <= 0 && len(def.NodeSpec) == 0 {
			return fmt.Errorf("scenario %s: service %s requests no nodes", sc.Name, def.Name)
		}
	}
	return nil
}

// Build allocates and registers one service instance for the
// definition.
func (d ServiceDef) Build(ctx context.Context, deps service.Deps) (*service.Service, error) {
	spec := make(map[cluster.OS]int, len(d.NodeSpec))
	for osName, count := range d.NodeSpec {
		spec[cluster.OS(osName)] = count
	}
	logs := make(map[string]service.LogDescriptor, len(d.Logs))
	for name, l := range d.Logs {
		logs[name] = service.LogDescriptor{Path: l.Path, CollectDefault: l.Collect}
	}
	return service.New(ctx, NewCommandService(d.Commands), service.Config{
		Name:     d.Name,
		NumNodes: d.NumNodes,
		NodeSpec: spec,
		Logs:     logs,
	}, deps)
}
