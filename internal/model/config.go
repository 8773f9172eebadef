package model

import (
	"context"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	ClusterProviderStatic = "static"
	ClusterProviderDocker = "docker"

	ServiceModeScenario = "scenario"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int       `json:"version" yaml:"version"` // fixed 0 for now
	Cluster  Cluster   `json:"cluster" yaml:"cluster"`
	Service  Service   `json:"service" yaml:"service"`
	History  *History  `json:"history,omitempty" yaml:"history,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Cluster names the node provider and its inventory.
type Cluster struct {
	Provider string         `json:"provider" yaml:"provider"`                 // "static" | "docker"
	Nodes    map[string]int `json:"nodes,omitempty" yaml:"nodes,omitempty"`   // static inventory per OS
	Image    *string        `json:"image,omitempty" yaml:"image,omitempty"`   // docker image override
}

// Service (only scenario mode supported now).
type Service struct {
	Mode    string  `json:"mode" yaml:"mode"` // must be "scenario"
	Verbose *bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log     *string `json:"log,omitempty" yaml:"log,omitempty"`           // "stderr"|"stdout"|"discard"
	LogsDir *string `json:"logs_dir,omitempty" yaml:"logs_dir,omitempty"` // where collected node logs land
}

// History enables the sqlite run store.
type History struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	DB      string `json:"db" yaml:"db"` // database file path
}

// Schedule switches the run into timer mode. Exactly one of the fields
// is expected; which one is checked by the scenario package, not here.
type Schedule struct {
	Cron  string `json:"cron,omitempty" yaml:"cron,omitempty"`   // 5 field cron expression or @macro
	Every string `json:"every,omitempty" yaml:"every,omitempty"` // fixed interval like "1h30m"
}

// DefaultConfig is what a fresh install runs with: two local nodes and
// a single scenario pass.
func DefaultConfig(_ context.Context) Config {
	verbose := false
	return Config{
		Version: 0,
		Cluster: Cluster{
			Provider: ClusterProviderStatic,
			Nodes:    map[string]int{"linux": 2},
		},
		Service: Service{
			Mode:    ServiceModeScenario,
			Verbose: &verbose,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
