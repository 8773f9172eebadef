package scenario

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/history"
	"github.com/go-rig/rig/internal/log"
	"github.com/go-rig/rig/internal/logcollect"
	"github.com/go-rig/rig/internal/model"
	"github.com/go-rig/rig/internal/registry"
	"github.com/go-rig/rig/internal/service"
)

// collectConcurrency bounds parallel log fetches per run.
const collectConcurrency = 4

// Runner executes the configured scenario, once or on a schedule, and
// owns the optional history database.
type Runner struct {
	config   model.Config
	scenario Scenario
	db       *sql.DB
}

// NewRunner parses the scenario out of the loaded config (viper must
// have read the config file already), validates it together with the
// schedule, and opens the history store when one is configured.
func NewRunner(ctx context.Context, cfg model.Config) (*Runner, error) {
	if cfg.Service.Mode != model.ServiceModeScenario {
		return nil, fmt.Errorf("only scenario mode is supported now")
	}

	sc, err := ParseConfig("scenario")
	if err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	if cfg.Schedule != nil {
		if _, err := scheduleJob(*cfg.Schedule); err != nil {
			return nil, err
		}
	}

	r := &Runner{config: cfg, scenario: sc}
	if cfg.History != nil && (cfg.History.Enabled == nil || *cfg.History.Enabled) {
		db, err := history.InitDB(ctx, cfg.History.DB)
		if err != nil {
			return nil, fmt.Errorf("initializing history db: %w", err)
		}
		r.db = db
	}
	return r, nil
}

// Close releases the history store. Safe to call twice.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Do runs the scenario. Without a schedule it is a single pass; with
// one it fires on the schedule until ctx is cancelled.
func (r *Runner) Do(ctx context.Context) error {
	if r.config.Schedule == nil {
		return r.Once(ctx)
	}

	scheduler, err := newScheduler(*r.config.Schedule, func() {
		if err := r.Once(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

// Once drives a single scenario pass: allocate, run, collect logs,
// tear down, record history. Teardown happens even when the run fails;
// the first run error is what the caller gets back.
func (r *Runner) Once(ctx context.Context) error {
	cl, err := r.buildCluster()
	if err != nil {
		return err
	}

	reg := registry.New()
	runID := reg.RunID().String()
	ctx = log.ContextAttrs(ctx, slog.String("run", runID))
	slog.InfoContext(ctx, "starting scenario", "scenario", r.scenario.Name, "services", len(r.scenario.Services))

	if r.db != nil {
		if err := history.Start(ctx, r.db, runID, r.scenario.Name); err != nil {
			return fmt.Errorf("recording run start: %w", err)
		}
	}

	deps := service.Deps{Cluster: cl, Registry: reg, Logger: slog.Default()}

	services := make([]*service.Service, 0, len(r.scenario.Services))
	var runErr error
	for _, def := range r.scenario.Services {
		svc, err := def.Build(ctx, deps)
		if err != nil {
			runErr = err
			break
		}
		services = append(services, svc)
	}

	if runErr == nil {
		runErr = r.drive(ctx, services)
	}

	// logs leave the nodes before teardown takes them away
	if len(services) > 0 {
		dest := r.logsDir(runID)
		if err := logcollect.Collect(ctx, dest, collectConcurrency, sources(services)...); err != nil {
			slog.WarnContext(ctx, "collecting logs failed", "error", err)
		}
	}

	r.teardown(ctx, reg)

	if r.db != nil {
		for _, svc := range services {
			if err := history.RecordSnapshot(ctx, r.db, runID, svc.Snapshot()); err != nil {
				slog.WarnContext(ctx, "recording snapshot failed", "service", svc.ID(), "error", err)
			}
		}
		r.finish(ctx, runID, runErr)
	}

	return runErr
}

func (r *Runner) drive(ctx context.Context, services []*service.Service) error {
	if r.scenario.Parallel {
		lifecycles := make([]service.Lifecycle, len(services))
		for i, svc := range services {
			lifecycles[i] = svc
		}
		return service.RunParallel(ctx, lifecycles...)
	}
	for _, svc := range services {
		if err := svc.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// teardown is best effort; a failed run must still hand its nodes
// back.
func (r *Runner) teardown(ctx context.Context, reg *registry.Registry) {
	ctx = context.WithoutCancel(ctx)
	sweeps := []struct {
		name string
		do   func(context.Context) error
	}{
		{"stop", reg.StopAll},
		{"clean", reg.CleanAll},
		{"free", reg.FreeAll},
	}
	for _, sweep := range sweeps {
		if err := sweep.do(ctx); err != nil {
			slog.WarnContext(ctx, "teardown sweep reported failures", "sweep", sweep.name, "error", err)
		}
	}
}

func (r *Runner) finish(ctx context.Context, runID string, runErr error) {
	var err error
	if runErr != nil {
		err = history.FinishErr(ctx, r.db, runID, runErr.Error())
	} else {
		err = history.FinishOK(ctx, r.db, runID)
	}
	if err != nil {
		slog.WarnContext(ctx, "recording run result failed", "error", err)
	}
}

func (r *Runner) buildCluster() (cluster.Cluster, error) {
	cfg := r.config.Cluster
	switch cfg.Provider {
	case model.ClusterProviderStatic:
		counts := make(map[cluster.OS]int, len(cfg.Nodes))
		for osName, count := range cfg.Nodes {
			counts[cluster.OS(osName)] = count
		}
		if len(counts) == 0 {
			counts[cluster.DefaultOS] = 2
		}
		return cluster.LocalInventory(counts), nil
	case model.ClusterProviderDocker:
		image := cluster.DefaultDockerImage
		if cfg.Image != nil && *cfg.Image != "" {
			image = *cfg.Image
		}
		return cluster.NewDockerCluster(image), nil
	default:
		return nil, fmt.Errorf("cluster provider %q is unknown", cfg.Provider)
	}
}

// logsDir is where one run's node logs land. An unset logs_dir falls
// back to rig-logs in the working directory.
func (r *Runner) logsDir(runID string) string {
	dir := "rig-logs"
	if r.config.Service.LogsDir != nil && *r.config.Service.LogsDir != "" {
		dir = *r.config.Service.LogsDir
	}
	return filepath.Join(dir, runID)
}

func sources(services []*service.Service) []logcollect.Source {
	out := make([]logcollect.Source, len(services))
	for i, svc := range services {
		out[i] = svc
	}
	return out
}
